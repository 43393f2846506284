package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ispkit/notify/pkg/logger"
)

// Worker claims jobs from a queue's store and runs the registered handler
// for each job type. Multiple workers may share one queue; the store's
// claim operation guarantees a job is only ever processed by one of them.
type Worker struct {
	queue    *Queue
	handlers map[JobType]Handler
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex

	pollInterval   time.Duration
	processTimeout time.Duration
	logger         *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// WorkerOption is a functional option for configuring a worker.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	pollInterval   time.Duration
	processTimeout time.Duration
	concurrency    int
	logger         *slog.Logger
}

// WithPollInterval sets how often the worker checks for ready jobs.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithProcessTimeout bounds a single processing attempt. A job exceeding
// it fails and is subject to the normal retry policy.
func WithProcessTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.processTimeout = d
		}
	}
}

// WithConcurrency sets the number of jobs processed in parallel.
func WithConcurrency(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithWorkerLogger sets the logger for the worker.
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewWorker creates a worker bound to the given queue.
func NewWorker(queue *Queue, opts ...WorkerOption) (*Worker, error) {
	if queue == nil {
		return nil, ErrStoreNil
	}

	options := &workerOptions{
		pollInterval:   time.Second,
		processTimeout: time.Minute,
		concurrency:    1,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		queue:          queue,
		handlers:       make(map[JobType]Handler),
		workerID:       uuid.New(),
		sem:            make(chan struct{}, options.concurrency),
		pollInterval:   options.pollInterval,
		processTimeout: options.processTimeout,
		logger:         options.logger,
	}, nil
}

// RegisterHandler registers a handler for its job type and makes the type
// enqueueable on the bound queue.
func (w *Worker) RegisterHandler(handler Handler) {
	if handler == nil {
		return
	}

	w.mu.Lock()
	w.handlers[handler.Type()] = handler
	w.mu.Unlock()

	w.queue.RegisterType(handler.Type())
}

// RegisterHandlers registers multiple handlers.
func (w *Worker) RegisterHandlers(handlers ...Handler) {
	for _, h := range handlers {
		w.RegisterHandler(h)
	}
}

// Start begins processing jobs in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)

	go w.run()

	w.logger.Info("worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Int("concurrency", cap(w.sem)))

	return nil
}

// Stop gracefully shuts down the worker, waiting for active jobs to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.logger.Info("worker stopped", slog.String("worker_id", w.workerID.String()))
	return nil
}

// Run starts the worker and returns a function suitable for errgroup.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

// run is the main claim loop.
func (w *Worker) run() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if w.queue.Paused() {
				continue
			}
			select {
			case w.sem <- struct{}{}:
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if err := w.pullAndProcess(); err != nil && !errors.Is(err, ErrHandlerNotFound) {
						w.logger.Error("failed to process job",
							slog.String("worker_id", w.workerID.String()),
							logger.Error(err))
					}
				}()
			default:
				// All slots busy, skip this tick.
			}
		}
	}
}

func (w *Worker) pullAndProcess() error {
	job, err := w.queue.Store().ClaimJob(w.ctx, w.workerID, w.processTimeout)
	if err != nil {
		if errors.Is(err, ErrNoJobToClaim) {
			return nil
		}
		return fmt.Errorf("failed to claim job: %w", err)
	}

	return w.process(job)
}

// process executes a claimed job with its handler.
func (w *Worker) process(job *Job) (retErr error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in handler: %v", r)
			w.logger.Error("handler panicked",
				logger.JobID(job.ID),
				logger.JobType(string(job.Type)),
				slog.Any("panic", r))
			_ = w.failJob(job, retErr)
		}
	}()

	w.mu.RLock()
	handler, ok := w.handlers[job.Type]
	w.mu.RUnlock()

	if !ok {
		// Retrying cannot help a job nobody handles; fail it terminally
		// so operators see it instead of it burning through the budget.
		reason := fmt.Sprintf("no handler registered for job type %q", job.Type)
		rctx, rcancel := w.recordContext()
		defer rcancel()
		if err := w.queue.Store().MarkFailed(rctx, job.ID, reason); err != nil {
			return fmt.Errorf("failed to mark job %s as failed: %w", job.ID, err)
		}
		return ErrHandlerNotFound
	}

	// The processing context is detached from the worker lifecycle so a
	// graceful shutdown lets in-flight jobs finish.
	ctx, cancel := context.WithTimeout(context.Background(), w.processTimeout)
	defer cancel()

	err := handler.Handle(ctx, job.Payload)
	if err == nil && ctx.Err() != nil {
		err = errors.Join(ErrJobTimeout, ctx.Err())
	}
	duration := time.Since(start)

	if err != nil {
		w.logger.Error("job attempt failed",
			logger.JobID(job.ID),
			logger.JobType(string(job.Type)),
			logger.AttemptsMade(int(job.AttemptsMade)),
			logger.Duration(duration),
			logger.Error(err))
		return w.failJob(job, err)
	}

	rctx, rcancel := w.recordContext()
	defer rcancel()
	if err := w.queue.Store().CompleteJob(rctx, job.ID); err != nil {
		return fmt.Errorf("failed to mark job %s as completed: %w", job.ID, err)
	}

	w.logger.Info("job completed",
		logger.JobID(job.ID),
		logger.JobType(string(job.Type)),
		logger.Duration(duration))

	return nil
}

func (w *Worker) failJob(job *Job, execErr error) error {
	rctx, rcancel := w.recordContext()
	defer rcancel()
	if err := w.queue.Store().FailJob(rctx, job.ID, execErr.Error()); err != nil {
		return fmt.Errorf("failed to record failure for job %s: %w", job.ID, err)
	}
	return nil
}

// recordContext returns a context for job outcome writes, detached from
// the worker lifecycle so jobs finishing during a graceful shutdown
// still get their result recorded.
func (w *Worker) recordContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), w.processTimeout)
}
