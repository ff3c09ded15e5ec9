package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// locker serializes mutations of one storage location across processes with
// flock and across goroutines of this process with a semaphore, since a
// flock.Flock already held by this process reports success to every caller.
type locker struct {
	sem   chan struct{}
	file  *flock.Flock
	retry time.Duration
}

func newLocker(storagePath string, retry time.Duration) *locker {
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	return &locker{
		sem:   make(chan struct{}, 1),
		file:  flock.New(storagePath + ".lock"),
		retry: retry,
	}
}

func (l *locker) path() string {
	return l.file.Path()
}

// withLock runs fn while holding the lock. Cancellation of ctx while waiting
// returns immediately without running fn.
func (l *locker) withLock(ctx context.Context, fn func() error) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("acquire registry lock: %w", ctx.Err())
	}
	defer func() { <-l.sem }()

	locked, err := l.file.TryLockContext(ctx, l.retry)
	if err != nil {
		return fmt.Errorf("acquire registry lock %s: %w", l.file.Path(), err)
	}
	if !locked {
		return errors.New("acquire registry lock: lock not obtained")
	}
	defer func() { _ = l.file.Unlock() }()

	return fn()
}
