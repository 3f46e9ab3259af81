package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const localPollInterval = 10 * time.Millisecond

type localEntry struct {
	holder    string
	expiresAt time.Time
}

// LocalLocker 进程内锁，用于单实例部署或未配置 Redis 的环境
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]localEntry
	now     func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		entries: make(map[string]localEntry),
		now:     time.Now,
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, lease, wait time.Duration) (*Token, error) {
	if err := checkArgs(key, lease); err != nil {
		return nil, err
	}

	holder := uuid.NewString()
	deadline := l.now().Add(wait)
	for {
		if token := l.tryAcquire(key, holder, lease); token != nil {
			return token, nil
		}
		if !l.now().Before(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(localPollInterval):
		}
	}
}

func (l *LocalLocker) tryAcquire(key, holder string, lease time.Duration) *Token {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.entries[key]; ok && now.Before(entry.expiresAt) {
		return nil
	}
	l.entries[key] = localEntry{holder: holder, expiresAt: now.Add(lease)}

	return &Token{
		Key:        key,
		Holder:     holder,
		AcquiredAt: now,
		Lease:      lease,
		release: func(context.Context) error {
			return l.unlock(key, holder)
		},
	}
}

func (l *LocalLocker) unlock(key, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || entry.holder != holder || !l.now().Before(entry.expiresAt) {
		return ErrLeaseExpired
	}
	delete(l.entries, key)
	return nil
}

func (l *LocalLocker) Release(ctx context.Context, token *Token) error {
	return release(ctx, token)
}

var _ Locker = (*LocalLocker)(nil)
