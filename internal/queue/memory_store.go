package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RetryBackoff returns the delay before a task's next attempt. Exponential:
// 30s, 1m, 2m, ... for retryCount 0, 1, 2, ...
func RetryBackoff(retryCount int) time.Duration {
	return 30 * time.Second << uint(retryCount)
}

// MemoryStore implements both queue repository interfaces in memory. Used in
// tests and local development; the production store is the gorm-backed task
// repository.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	dead  map[uuid.UUID]*DeadTask
}

// NewMemoryStore creates an empty in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[uuid.UUID]*Task),
		dead:  make(map[uuid.UUID]*DeadTask),
	}
}

// CreateTask implements EnqueuerRepository.
func (s *MemoryStore) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return ErrPayloadNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

// ClaimTask implements WorkerRepository. The oldest ready pending task from
// the requested queues wins; expired processing locks are reclaimed.
func (s *MemoryStore) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var best *Task
	for _, task := range s.tasks {
		if !inQueues(task.Queue, queues) {
			continue
		}
		switch task.Status {
		case TaskStatusPending:
			if task.ScheduledAt.After(now) {
				continue
			}
		case TaskStatusProcessing:
			if task.LockedUntil == nil || task.LockedUntil.After(now) {
				continue
			}
		default:
			continue
		}
		if best == nil || task.ScheduledAt.Before(best.ScheduledAt) {
			best = task
		}
	}

	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	lockUntil := now.Add(lockDuration)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID

	cp := *best
	return &cp, nil
}

// CompleteTask implements WorkerRepository.
func (s *MemoryStore) CompleteTask(_ context.Context, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	now := time.Now()
	task.Status = TaskStatusCompleted
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil
	return nil
}

// FailTask implements WorkerRepository.
func (s *MemoryStore) FailTask(_ context.Context, taskID uuid.UUID, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}

	task.Error = &errorMsg
	task.LockedUntil = nil
	task.LockedBy = nil

	if task.RetryCount >= task.MaxRetries {
		task.Status = TaskStatusFailed
		return nil
	}

	task.ScheduledAt = time.Now().Add(RetryBackoff(task.RetryCount))
	task.RetryCount++
	task.Status = TaskStatusPending
	return nil
}

// MoveToDeadLetter implements WorkerRepository.
func (s *MemoryStore) MoveToDeadLetter(_ context.Context, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}

	errMsg := ""
	if task.Error != nil {
		errMsg = *task.Error
	}
	s.dead[task.ID] = &DeadTask{
		ID:         uuid.New(),
		TaskID:     task.ID,
		Queue:      task.Queue,
		TaskName:   task.TaskName,
		Payload:    task.Payload,
		Error:      errMsg,
		RetryCount: task.RetryCount,
		FailedAt:   time.Now(),
		CreatedAt:  task.CreatedAt,
	}
	delete(s.tasks, taskID)
	return nil
}

// Tasks returns a snapshot of all live tasks, oldest first. Test helper.
func (s *MemoryStore) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out
}

// DeadTasks returns a snapshot of the dead-letter queue. Test helper.
func (s *MemoryStore) DeadTasks() []DeadTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]DeadTask, 0, len(s.dead))
	for _, t := range s.dead {
		out = append(out, *t)
	}
	return out
}

func inQueues(queue string, queues []string) bool {
	for _, q := range queues {
		if q == queue {
			return true
		}
	}
	return false
}
