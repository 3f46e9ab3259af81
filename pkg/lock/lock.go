// Package lock provides time-bounded exclusive ownership of a logical resource key.
//
// A lease that is not released before it elapses is reclaimed automatically, so a
// holder that overruns its lease may race with the next holder. Callers must keep a
// final consistency guard in the persistence layer; the lock only bounds the
// probability of concurrent work on the same key.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyKey     = errors.New("lock key is empty")
	ErrInvalidLease = errors.New("lock lease must be positive")
	// ErrLeaseExpired 释放时锁已过期或已被他人持有
	ErrLeaseExpired = errors.New("lock lease already expired")
)

// Token 锁凭证，仅在租期内有效
type Token struct {
	Key        string
	Holder     string
	AcquiredAt time.Time
	Lease      time.Duration

	release func(ctx context.Context) error
}

// ExpiresAt 租期到期时间
func (t *Token) ExpiresAt() time.Time {
	return t.AcquiredAt.Add(t.Lease)
}

// Locker 分布式锁
type Locker interface {
	// Acquire 在 wait 时间内尝试获取锁，获取不到返回 nil, nil
	Acquire(ctx context.Context, key string, lease, wait time.Duration) (*Token, error)
	Release(ctx context.Context, token *Token) error
}

func checkArgs(key string, lease time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if lease <= 0 {
		return ErrInvalidLease
	}
	return nil
}

func release(ctx context.Context, token *Token) error {
	if token == nil || token.release == nil {
		return nil
	}
	return token.release(ctx)
}
