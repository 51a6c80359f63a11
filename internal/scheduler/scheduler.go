package scheduler

import (
	"context"
	"sync"
	"time"

	"flightcore/internal/obslog"

	"go.uber.org/zap"
)

// Task is a unit of periodic background work. It must honor ctx and
// return when cancelled.
type Task func(ctx context.Context)

// Scheduler drives periodic background tasks, each on its own goroutine.
// A task never overlaps itself: ticks that arrive while it is still
// running are dropped by the ticker.
type Scheduler struct {
	log    *obslog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped-on-demand scheduler.
func New(log *obslog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Every runs task serially once per interval until Stop is called.
func (s *Scheduler) Every(name string, interval time.Duration, task Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.log.Info("scheduler task started",
			zap.String("task", name),
			zap.Duration("interval", interval),
		)

		for {
			select {
			case <-s.ctx.Done():
				s.log.Info("scheduler task stopped", zap.String("task", name))
				return
			case <-ticker.C:
				task(s.ctx)
			}
		}
	}()
}

// Stop cancels all tasks and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}
