package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when no queue is specified at enqueue time.
const DefaultQueueName = "default"

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is a durable unit of work. Tasks are delivered at least once: a task
// whose lock expires becomes claimable again, so every handler must be
// idempotent.
type Task struct {
	ID          uuid.UUID  `json:"id" gorm:"primaryKey"`
	Queue       string     `json:"queue" gorm:"size:50;index:idx_tasks_claim"`
	TaskName    string     `json:"task_name" gorm:"size:100"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      TaskStatus `json:"status" gorm:"size:20;index:idx_tasks_claim"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	ScheduledAt time.Time  `json:"scheduled_at" gorm:"index:idx_tasks_claim"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// DeadTask is a task that exhausted its retry budget, kept for inspection
// and manual requeueing.
type DeadTask struct {
	ID         uuid.UUID `json:"id" gorm:"primaryKey"`
	TaskID     uuid.UUID `json:"task_id" gorm:"index"`
	Queue      string    `json:"queue" gorm:"size:50"`
	TaskName   string    `json:"task_name" gorm:"size:100"`
	Payload    []byte    `json:"payload,omitempty"`
	Error      string    `json:"error"`
	RetryCount int       `json:"retry_count"`
	FailedAt   time.Time `json:"failed_at"`
	CreatedAt  time.Time `json:"created_at"`
}
