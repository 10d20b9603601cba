package probe

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// jitterFraction bounds the random delay before a target's first cycle.
const jitterFraction = 0.2

// Scheduler triggers each target's cycle on its own fixed interval.
// Cycles of one target run inline in that target's goroutine, so they
// never overlap; ticks that fire while a cycle is in flight are dropped.
type Scheduler struct {
	monitor  *Monitor
	interval time.Duration
	jitter   bool
	log      *slog.Logger

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler. With jitter set, the first cycle of
// each target is delayed by up to 20% of the interval.
func NewScheduler(monitor *Monitor, interval time.Duration, jitter bool, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		monitor:  monitor,
		interval: interval,
		jitter:   jitter,
		log:      log,
	}
}

// Start launches one goroutine per target. They stop when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	targets := s.monitor.Targets()
	for _, t := range targets {
		s.wg.Add(1)
		go func(name string) {
			defer s.wg.Done()
			s.run(ctx, name)
		}(t.Name)
	}
	s.log.Info("Scheduler started", "targets", len(targets), "interval", s.interval)
}

// Wait blocks until every target goroutine has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, name string) {
	if delay := s.initialDelay(); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.cycle(ctx, name)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx, name)
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context, name string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Cycle panicked", "target", name, "panic", r)
		}
	}()
	_, _ = s.monitor.RunCycle(ctx, name)
}

func (s *Scheduler) initialDelay() time.Duration {
	if !s.jitter || s.interval <= 0 {
		return 0
	}
	maxJitter := int64(float64(s.interval) * jitterFraction)
	if maxJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(maxJitter + 1))
}
