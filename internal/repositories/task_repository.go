package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/waveline/notify-server/internal/queue"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskRepository is the durable task store behind the queue enqueuer and
// workers. It implements queue.EnqueuerRepository and queue.WorkerRepository
// on top of PostgreSQL.
type TaskRepository interface {
	queue.EnqueuerRepository
	queue.WorkerRepository
}

type postgresTaskRepository struct {
	db *gorm.DB
}

// NewPostgresTaskRepository creates a gorm-backed TaskRepository.
func NewPostgresTaskRepository(db *gorm.DB) TaskRepository {
	return &postgresTaskRepository{db: db}
}

func (r *postgresTaskRepository) CreateTask(ctx context.Context, task *queue.Task) error {
	if task == nil {
		return queue.ErrPayloadNil
	}
	return r.db.WithContext(ctx).Create(task).Error
}

// ClaimTask locks the oldest ready task with SELECT ... FOR UPDATE SKIP
// LOCKED so concurrent workers never claim the same row. A processing task
// whose lock expired is claimable again.
func (r *postgresTaskRepository) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*queue.Task, error) {
	var task queue.Task
	now := time.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("queue IN ?", queues).
			Where(
				tx.Where("status = ? AND scheduled_at <= ?", queue.TaskStatusPending, now).
					Or("status = ? AND locked_until <= ?", queue.TaskStatusProcessing, now),
			).
			Order("scheduled_at ASC").
			First(&task).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return queue.ErrNoTaskToClaim
			}
			return err
		}

		lockedUntil := now.Add(lockDuration)
		task.Status = queue.TaskStatusProcessing
		task.LockedUntil = &lockedUntil
		task.LockedBy = &workerID
		return tx.Model(&queue.Task{}).Where("id = ?", task.ID).Updates(map[string]any{
			"status":       queue.TaskStatusProcessing,
			"locked_until": lockedUntil,
			"locked_by":    workerID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *postgresTaskRepository) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&queue.Task{}).
		Where("id = ?", taskID).
		Updates(map[string]any{
			"status":       queue.TaskStatusCompleted,
			"processed_at": time.Now(),
			"locked_until": nil,
			"locked_by":    nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return queue.ErrTaskNotFound
	}
	return nil
}

func (r *postgresTaskRepository) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task queue.Task
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&task, "id = ?", taskID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return queue.ErrTaskNotFound
			}
			return err
		}

		updates := map[string]any{
			"error":        errorMsg,
			"locked_until": nil,
			"locked_by":    nil,
		}
		if task.RetryCount >= task.MaxRetries {
			updates["status"] = queue.TaskStatusFailed
		} else {
			updates["status"] = queue.TaskStatusPending
			updates["scheduled_at"] = time.Now().Add(queue.RetryBackoff(task.RetryCount))
			updates["retry_count"] = task.RetryCount + 1
		}
		return tx.Model(&queue.Task{}).Where("id = ?", taskID).Updates(updates).Error
	})
}

func (r *postgresTaskRepository) MoveToDeadLetter(ctx context.Context, taskID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task queue.Task
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&task, "id = ?", taskID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return queue.ErrTaskNotFound
			}
			return err
		}

		errMsg := ""
		if task.Error != nil {
			errMsg = *task.Error
		}
		dead := queue.DeadTask{
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
		if err := tx.Create(&dead).Error; err != nil {
			return err
		}
		return tx.Delete(&queue.Task{}, "id = ?", task.ID).Error
	})
}
