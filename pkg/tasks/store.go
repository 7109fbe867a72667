package tasks

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskStore provides database operations for background tasks.
type TaskStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db, now: time.Now}
}

// AutoMigrate creates or updates the background_tasks table.
func (s *TaskStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Task{})
}

// TaskListFilter defines filters for listing tasks.
type TaskListFilter struct {
	Type        string
	State       string
	ComponentID int64
}

var activeStates = []TaskState{TaskStateQueued, TaskStateRunning}

// Enqueue creates a new queued task. If the task carries an idempotency key
// and an active task with the same key exists, that task is returned instead.
func (s *TaskStore) Enqueue(task *Task) (*Task, error) {
	if !task.Type.Valid() {
		return nil, fmt.Errorf("enqueue task: unknown task type %q", task.Type)
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.State = TaskStateQueued
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now()
	}

	if task.IdempotencyKey == nil {
		if err := s.db.Create(task).Error; err != nil {
			return nil, fmt.Errorf("enqueue task: %w", err)
		}
		return task, nil
	}

	var result *Task
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing Task
		err := tx.Where("idempotency_key = ? AND state IN ?", *task.IdempotencyKey, activeStates).First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check idempotency key: %w", err)
		}

		// finished tasks release their key so the unique index admits the new one
		if err := tx.Model(&Task{}).
			Where("idempotency_key = ? AND state IN ?", *task.IdempotencyKey,
				[]TaskState{TaskStateSucceeded, TaskStateFailed}).
			Update("idempotency_key", nil).Error; err != nil {
			return fmt.Errorf("release idempotency key: %w", err)
		}

		if err := tx.Create(task).Error; err != nil {
			return fmt.Errorf("enqueue task: %w", err)
		}
		result = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Claim picks the oldest queued task and marks it running. Returns nil if no
// task is available. On PostgreSQL the row is locked with SKIP LOCKED so that
// concurrent workers never claim the same task.
func (s *TaskStore) Claim(maxRetries int) (*Task, error) {
	var claimed *Task
	err := s.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Where("state = ? AND attempt_count <= ?", TaskStateQueued, maxRetries).
			Order("created_at ASC").
			Limit(1)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var task Task
		if err := q.First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		res := tx.Model(&Task{}).Where("id = ? AND state = ?", task.ID, TaskStateQueued).
			Updates(map[string]any{
				"state":         TaskStateRunning,
				"started_at":    s.now(),
				"attempt_count": gorm.Expr("attempt_count + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.First(&task, "id = ?", task.ID).Error; err != nil {
			return err
		}
		claimed = &task
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return claimed, nil
}

// Complete marks a task as succeeded.
func (s *TaskStore) Complete(taskID, result string, duration time.Duration) error {
	res := s.db.Model(&Task{}).Where("id = ?", taskID).Updates(map[string]any{
		"state":       TaskStateSucceeded,
		"finished_at": s.now(),
		"result":      result,
		"duration_ms": duration.Milliseconds(),
	})
	if res.Error != nil {
		return fmt.Errorf("complete task: %w", res.Error)
	}
	return nil
}

// Fail records a failed attempt. Tasks with attempts left are requeued.
func (s *TaskStore) Fail(taskID, errMsg string, maxRetries int) error {
	var task Task
	if err := s.db.First(&task, "id = ?", taskID).Error; err != nil {
		return fmt.Errorf("load task for fail: %w", err)
	}

	updates := map[string]any{"last_error": errMsg}
	if task.AttemptCount < maxRetries {
		updates["state"] = TaskStateQueued
		updates["started_at"] = nil
	} else {
		updates["state"] = TaskStateFailed
		updates["finished_at"] = s.now()
	}
	if err := s.db.Model(&Task{}).Where("id = ?", taskID).Updates(updates).Error; err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	return nil
}

// Get retrieves a task by ID. Returns nil, nil if it does not exist.
func (s *TaskStore) Get(taskID string) (*Task, error) {
	var task Task
	if err := s.db.First(&task, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// List returns paginated tasks matching filter, newest first.
func (s *TaskStore) List(filter TaskListFilter, pageSize int, pageToken string) ([]Task, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&Task{})
		if filter.Type != "" {
			q = q.Where("type = ?", filter.Type)
		}
		if filter.State != "" {
			q = q.Where("state = ?", filter.State)
		}
		if filter.ComponentID != 0 {
			q = q.Where("component_id = ?", filter.ComponentID)
		}
		return q
	}

	var total int64
	if err := buildQuery(s.db).Count(&total).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count tasks: %w", err)
	}

	query := buildQuery(s.db).Order("created_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("created_at < ?", t)
	}

	var records []Task
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list tasks: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}
	return records, nextToken, int(total), nil
}

// CleanupStuckTasks requeues running tasks started before now-claimTimeout.
func (s *TaskStore) CleanupStuckTasks(claimTimeout time.Duration) (int64, error) {
	cutoff := s.now().Add(-claimTimeout)
	res := s.db.Model(&Task{}).
		Where("state = ? AND started_at < ?", TaskStateRunning, cutoff).
		Updates(map[string]any{
			"state":      TaskStateQueued,
			"started_at": nil,
			"last_error": "timed out (stuck task recovery)",
		})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup stuck tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteOlderThan removes finished tasks older than cutoff.
func (s *TaskStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res := s.db.Where("state IN ? AND finished_at < ?",
		[]TaskState{TaskStateSucceeded, TaskStateFailed}, cutoff).
		Delete(&Task{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete old tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}
