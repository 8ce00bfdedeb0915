package restore

// lock.go guards a target store against concurrent restores.
//
// A restore must hold the lock for its whole lifetime: from before the
// clearing phase until the summary is produced. Two interleaved runs could
// otherwise clear rows the other has just inserted.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRestoreInProgress is returned when another restore holds the lock for
// the same target and the wait timeout expires.
var ErrRestoreInProgress = errors.New("another restore is already running against this environment")

// DefaultLockWait is how long Acquire waits for a busy lock before giving up.
const DefaultLockWait = 5 * time.Second

// Locker provides a lock keyed by target environment.
type Locker interface {
	// Acquire blocks until the lock for key is held, the wait timeout expires
	// (ErrRestoreInProgress) or ctx is done. The returned release func must be
	// called exactly once; calling it again is a no-op.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalLocker is an in-process Locker. Each key is a one-slot semaphore.
// It only protects against restores started by the same process; use a
// store-backed lock when several instances share a database.
type LocalLocker struct {
	maxWait time.Duration

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker creates a locker that waits at most maxWait for a busy key.
func NewLocalLocker(maxWait time.Duration) *LocalLocker {
	if maxWait <= 0 {
		maxWait = DefaultLockWait
	}
	return &LocalLocker{
		maxWait: maxWait,
		slots:   make(map[string]chan struct{}),
	}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Acquire takes the lock for key.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil

	case <-waitCtx.Done():
		// Check if original context was cancelled vs timeout
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrRestoreInProgress
	}
}

// Held reports whether the lock for key is currently taken.
func (l *LocalLocker) Held(key string) bool {
	return len(l.slot(key)) == 1
}
