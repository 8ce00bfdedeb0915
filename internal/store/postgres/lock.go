package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/classifieds/internal/restore"
	"github.com/jackc/pgx/v5/pgxpool"
)

// lockPollInterval is how often a busy advisory lock is retried.
const lockPollInterval = 250 * time.Millisecond

// AdvisoryLocker is a restore.Locker backed by a PostgreSQL session-level
// advisory lock, so restores are serialized across every instance sharing
// the database. The lock lives on a dedicated pooled connection that is held
// until release.
type AdvisoryLocker struct {
	pool    *pgxpool.Pool
	maxWait time.Duration
}

// NewAdvisoryLocker creates a locker that waits at most maxWait for a busy key.
func NewAdvisoryLocker(pool *pgxpool.Pool, maxWait time.Duration) *AdvisoryLocker {
	if maxWait <= 0 {
		maxWait = restore.DefaultLockWait
	}
	return &AdvisoryLocker{pool: pool, maxWait: maxWait}
}

// Acquire takes the advisory lock for key.
func (l *AdvisoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	deadline := time.Now().Add(l.maxWait)
	for {
		var locked bool
		err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", key).Scan(&locked)
		if err != nil {
			conn.Release()
			return nil, fmt.Errorf("try advisory lock: %w", err)
		}
		if locked {
			break
		}

		if time.Now().After(deadline) {
			conn.Release()
			return nil, restore.ErrRestoreInProgress
		}
		select {
		case <-ctx.Done():
			conn.Release()
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock(hashtext($1))", key); err != nil {
				// Closing the session drops every lock it holds.
				slog.Warn("advisory unlock failed, closing connection", "key", key, "error", err)
				conn.Conn().Close(unlockCtx)
			}
			conn.Release()
		})
	}
	return release, nil
}
