// Package scheduler runs named maintenance sweeps on fixed intervals:
// queue retention, inactive-device cleanup, notification auto-archival.
// It is deliberately simple; anything needing durability or retry belongs
// in the job queue instead.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ispkit/notify/pkg/logger"
)

var (
	// ErrTaskAlreadyRegistered is returned when registering a duplicate task name.
	ErrTaskAlreadyRegistered = errors.New("task already registered")

	// ErrNoTasks is returned when the scheduler is started with nothing to run.
	ErrNoTasks = errors.New("scheduler has no registered tasks")
)

// TaskFunc is a single sweep invocation.
type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
	lastRun  time.Time
}

// Scheduler runs registered tasks whenever their interval elapses.
type Scheduler struct {
	mu            sync.Mutex
	tasks         map[string]*task
	checkInterval time.Duration
	logger        *slog.Logger
}

// Option is a functional option for configuring a Scheduler.
type Option func(*Scheduler)

// WithCheckInterval sets how often due tasks are looked for.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.checkInterval = d
		}
	}
}

// WithLogger sets the logger for the scheduler.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:         make(map[string]*task),
		checkInterval: 30 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Every registers a task to run once per interval. The first run happens
// one interval after Start, not immediately.
func (s *Scheduler) Every(interval time.Duration, name string, fn TaskFunc) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %v for task %q", interval, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return ErrTaskAlreadyRegistered
	}

	s.tasks[name] = &task{
		name:     name,
		interval: interval,
		fn:       fn,
		lastRun:  time.Now(),
	}

	s.logger.Info("registered periodic task",
		slog.String("task", name),
		slog.Duration("interval", interval))

	return nil
}

// Start blocks, running due tasks until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	count := len(s.tasks)
	s.mu.Unlock()
	if count == 0 {
		return ErrNoTasks
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// Run returns a function suitable for errgroup.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		err := s.Start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

func (s *Scheduler) runDue(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	due := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if now.Sub(t.lastRun) >= t.interval {
			t.lastRun = now
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		s.runTask(ctx, t)
	}
}

func (s *Scheduler) runTask(ctx context.Context, t *task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("periodic task panicked",
				slog.String("task", t.name),
				slog.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := t.fn(ctx); err != nil {
		s.logger.Error("periodic task failed",
			slog.String("task", t.name),
			logger.Error(err))
		return
	}

	s.logger.Debug("periodic task completed",
		slog.String("task", t.name),
		logger.Duration(time.Since(start)))
}
