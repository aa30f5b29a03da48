package indexer

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds how many file tasks of one run execute at the same time.
// Each folder or batch run creates its own Limiter.
type Limiter struct {
	sem      *semaphore.Weighted
	size     int
	inFlight atomic.Int32
	peak     atomic.Int32
}

// NewLimiter creates a Limiter with maxWorkers slots. Values below 1 are
// treated as 1.
func NewLimiter(maxWorkers int) *Limiter {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Limiter{
		sem:  semaphore.NewWeighted(int64(maxWorkers)),
		size: maxWorkers,
	}
}

// WithSlot waits for a free slot, runs task and frees the slot. The slot is
// freed even if task panics. If ctx ends before a slot is obtained, task is
// not run and the context error is returned.
func (l *Limiter) WithSlot(ctx context.Context, task func()) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)

	n := l.inFlight.Add(1)
	defer l.inFlight.Add(-1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}

	task()
	return nil
}

// Size returns the number of slots
func (l *Limiter) Size() int {
	return l.size
}

// InFlight returns the number of tasks currently holding a slot
func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}

// Peak returns the highest number of tasks that held a slot at once
func (l *Limiter) Peak() int {
	return int(l.peak.Load())
}
