package attempt

import (
	"context"
	"sync"
	"time"
)

// Scheduler owns the periodic tasks of one attempt. CancelAll stops every
// task at once; no task body starts after it returns.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler derives its lifetime from parent.
func NewScheduler(parent context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{ctx: ctx, cancel: cancel}
}

// Every runs fn each period until CancelAll. It reports false when the
// scheduler is already cancelled.
func (s *Scheduler) Every(period time.Duration, fn func(ctx context.Context)) bool {
	if s.ctx.Err() != nil {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if s.ctx.Err() != nil {
					return
				}
				fn(s.ctx)
			}
		}
	}()
	return true
}

// CancelAll stops all tasks without waiting, so it is safe to call from a task.
func (s *Scheduler) CancelAll() { s.cancel() }

// Done is closed once CancelAll has been called.
func (s *Scheduler) Done() <-chan struct{} { return s.ctx.Done() }

// Wait blocks until every task goroutine has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }
