package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRetryDelay = 25 * time.Millisecond

// RedisLocker 基于 redsync 的分布式锁
type RedisLocker struct {
	rs         *redsync.Redsync
	retryDelay time.Duration
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{
		rs:         redsync.New(goredis.NewPool(rdb)),
		retryDelay: defaultRetryDelay,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, lease, wait time.Duration) (*Token, error) {
	if err := checkArgs(key, lease); err != nil {
		return nil, err
	}

	holder := uuid.NewString()
	mutex := l.rs.NewMutex(
		key,
		redsync.WithExpiry(lease),
		redsync.WithTries(l.tries(wait)),
		redsync.WithRetryDelay(l.retryDelay),
		redsync.WithGenValueFunc(func() (string, error) { return holder, nil }),
	)

	// 等待时间由 context 兜底，保证不会无限阻塞
	waitCtx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, wait+l.retryDelay)
		defer cancel()
	}

	acquiredAt := time.Now()
	if err := mutex.LockContext(waitCtx); err != nil {
		if isContention(err) || (ctx.Err() == nil && waitCtx.Err() != nil) {
			return nil, nil
		}
		return nil, err
	}

	return &Token{
		Key:        key,
		Holder:     holder,
		AcquiredAt: acquiredAt,
		Lease:      lease,
		release: func(ctx context.Context) error {
			ok, err := mutex.UnlockContext(ctx)
			if errors.Is(err, redsync.ErrLockAlreadyExpired) || (err == nil && !ok) {
				return ErrLeaseExpired
			}
			return err
		},
	}, nil
}

func (l *RedisLocker) Release(ctx context.Context, token *Token) error {
	return release(ctx, token)
}

func (l *RedisLocker) tries(wait time.Duration) int {
	if wait <= 0 {
		return 1
	}
	return int(wait/l.retryDelay) + 1
}

func isContention(err error) bool {
	if errors.Is(err, redsync.ErrFailed) {
		return true
	}
	var taken *redsync.ErrTaken
	if errors.As(err, &taken) {
		return true
	}
	var nodeTaken *redsync.ErrNodeTaken
	return errors.As(err, &nodeTaken)
}

var _ Locker = (*RedisLocker)(nil)
