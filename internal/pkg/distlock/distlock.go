// Package distlock serializes work on a key across service instances.
//
// Redis (SET NX with a TTL) is preferred; PostgreSQL advisory locks are the
// fallback when no Redis is configured. Locker layers waiting on top of the
// non-blocking DistLock implementations.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/ignite/newsletter-service/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned by Locker.Lock when the wait expires.
var ErrNotAcquired = errors.New("lock not acquired")

// DistLock is the interface for distributed locking.
// A DistLock instance belongs to one goroutine at a time.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// NewLock creates a distributed lock using the best available backend.
// If redisClient is non-nil, uses Redis; otherwise PostgreSQL advisory locks.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
// Advisory locks are session-scoped, so the connection that took the lock is
// pinned until Release. A dropped connection releases the lock.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a lock ID derived from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire runs pg_try_advisory_lock on a dedicated connection.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, fmt.Errorf("advisory lock %d already held", l.lockID)
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock %d: %w", l.lockID, err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil
	defer conn.Close()
	_, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}

// extender is implemented by locks that expire unless refreshed.
type extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// Locker hands out per-key locks and waits for contended keys.
type Locker struct {
	newLock func(key string) DistLock
	ttl     time.Duration
	wait    time.Duration
	retry   time.Duration
}

// NewLocker creates a Locker over Redis (when redisClient is non-nil) or
// PostgreSQL. Held Redis locks are refreshed every ttl/2 so a slow holder
// keeps them; Lock gives up after wait.
func NewLocker(redisClient *redis.Client, db *sql.DB, ttl, wait time.Duration) *Locker {
	return &Locker{
		newLock: func(key string) DistLock { return NewLock(redisClient, db, key, ttl) },
		ttl:     ttl,
		wait:    wait,
		retry:   25 * time.Millisecond,
	}
}

// Lock polls until the key is acquired, the wait expires, or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	lock := l.newLock(key)

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	for {
		ok, err := lock.Acquire(ctx)
		if err != nil && ctx.Err() == nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
		case <-time.After(l.retry):
		}
	}

	stop := l.keepAlive(key, lock)
	return func() {
		stop()
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lock.Release(rctx); err != nil {
			logger.Warn("lock release failed", "key", key, "error", err)
		}
	}, nil
}

// keepAlive extends an expiring lock until the returned stop func is called.
// It gives up once the lock has passed to another holder.
func (l *Locker) keepAlive(key string, lock DistLock) (stop func()) {
	ext, ok := lock.(extender)
	if !ok || l.ttl <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(l.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
				err := ext.Extend(ctx, l.ttl)
				cancel()
				if errors.Is(err, ErrNotOwner) {
					logger.Warn("lock lost before release", "key", key)
					return
				}
				if err != nil {
					logger.Warn("lock extend failed", "key", key, "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}
