package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WorkerRepository is the storage interface for task processing.
type WorkerRepository interface {
	// ClaimTask atomically claims the next available task from the given
	// queues, locking it for lockDuration. Returns ErrNoTaskToClaim when
	// nothing is ready.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)

	// CompleteTask marks a task as completed.
	CompleteTask(ctx context.Context, taskID uuid.UUID) error

	// FailTask records the error, increments the retry count and, when the
	// budget allows, reschedules the task with backoff.
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error

	// MoveToDeadLetter moves an exhausted task to the dead-letter table.
	MoveToDeadLetter(ctx context.Context, taskID uuid.UUID) error
}

// Worker claims and processes tasks from the queue. Multiple workers can run
// against the same store; claiming is atomic so each task is processed by at
// most one worker at a time.
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex

	pullInterval time.Duration
	lockTimeout  time.Duration
	logger       zerolog.Logger

	cancel context.CancelFunc
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithQueues sets which queues the worker pulls from.
func WithQueues(queues ...string) WorkerOption {
	return func(w *Worker) {
		if len(queues) > 0 {
			w.queues = queues
		}
	}
}

// WithPullInterval sets how often the worker polls for new tasks.
func WithPullInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pullInterval = d
		}
	}
}

// WithLockTimeout sets the claim lock duration, which doubles as the
// per-task execution timeout.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lockTimeout = d
		}
	}
}

// WithConcurrency sets the maximum number of tasks processed in parallel.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.sem = make(chan struct{}, n)
		}
	}
}

// WithLogger sets the worker logger.
func WithLogger(logger zerolog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// NewWorker creates a task worker.
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	w := &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       []string{DefaultQueueName},
		workerID:     uuid.New(),
		sem:          make(chan struct{}, 1),
		pullInterval: 5 * time.Second,
		lockTimeout:  5 * time.Minute,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// RegisterHandlers registers task handlers by name.
func (w *Worker) RegisterHandlers(handlers ...Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			w.handlers[h.Name()] = h
		}
	}
}

// Start begins processing tasks in the background until Stop is called or
// ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("queue: worker already started")
	}
	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	go w.run(ctx)

	w.logger.Info().
		Str("worker_id", w.workerID.String()).
		Strs("queues", w.queues).
		Int("concurrency", cap(w.sem)).
		Msg("queue worker started")
	return nil
}

// Stop cancels the polling loop and waits for in-flight tasks to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()

	w.logger.Info().Str("worker_id", w.workerID.String()).Msg("queue worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()
					w.pullAndProcess(ctx)
				}()
			default:
				// All slots busy; try again next tick.
			}
		}
	}
}

func (w *Worker) pullAndProcess(ctx context.Context) {
	task, err := w.repo.ClaimTask(ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		if !errors.Is(err, ErrNoTaskToClaim) && ctx.Err() == nil {
			w.logger.Error().Err(err).Str("worker_id", w.workerID.String()).Msg("failed to claim task")
		}
		return
	}
	w.processTask(ctx, task)
}

func (w *Worker) processTask(ctx context.Context, task *Task) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().
				Str("task_id", task.ID.String()).
				Str("task_name", task.TaskName).
				Any("panic", r).
				Msg("task handler panicked")
			w.failTask(ctx, task, fmt.Errorf("panic in handler: %v", r))
		}
	}()

	w.mu.RLock()
	handler, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()

	if !ok {
		// Retrying cannot help without a handler; dead-letter immediately so
		// the task can be requeued once the handler ships.
		w.logger.Error().
			Str("task_id", task.ID.String()).
			Str("task_name", task.TaskName).
			Msg("no handler registered for task")
		if err := w.repo.FailTask(ctx, task.ID, "no handler registered for task: "+task.TaskName); err != nil {
			w.logger.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to mark task failed")
		}
		if err := w.repo.MoveToDeadLetter(ctx, task.ID); err != nil {
			w.logger.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to move task to dead letter")
		}
		return
	}

	// Task execution is bounded by the lock timeout but detached from the
	// polling context so graceful shutdown lets in-flight tasks complete.
	taskCtx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	err := handler.Handle(taskCtx, task.Payload)
	duration := time.Since(start)

	if err != nil {
		w.logger.Error().Err(err).
			Str("task_id", task.ID.String()).
			Str("task_name", task.TaskName).
			Int("retry_count", task.RetryCount).
			Int("max_retries", task.MaxRetries).
			Dur("duration", duration).
			Msg("task failed")
		w.failTask(ctx, task, err)
		return
	}

	if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to mark task completed")
		return
	}

	w.logger.Debug().
		Str("task_id", task.ID.String()).
		Str("task_name", task.TaskName).
		Dur("duration", duration).
		Msg("task completed")
}

func (w *Worker) failTask(ctx context.Context, task *Task, execErr error) {
	if err := w.repo.FailTask(ctx, task.ID, execErr.Error()); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to record task failure")
		return
	}

	// RetryCount carries the value at claim time; the final attempt runs with
	// RetryCount == MaxRetries.
	if task.RetryCount >= task.MaxRetries {
		if err := w.repo.MoveToDeadLetter(ctx, task.ID); err != nil {
			w.logger.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to move task to dead letter")
			return
		}
		w.logger.Warn().
			Str("task_id", task.ID.String()).
			Str("task_name", task.TaskName).
			Msg("task permanently failed, moved to dead letter queue")
	}
}
