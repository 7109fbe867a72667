package tasks

import (
	"time"

	"github.com/sampledb/sampledb/pkg/store"
)

// TaskType is the closed set of background task kinds.
type TaskType string

const (
	TaskTypeUpdateShares TaskType = "update_shares"
	TaskTypeImportEntity TaskType = "import_entity"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeUpdateShares, TaskTypeImportEntity:
		return true
	}
	return false
}

// TaskState represents the lifecycle state of a task.
type TaskState string

const (
	TaskStateQueued    TaskState = "queued"
	TaskStateRunning   TaskState = "running"
	TaskStateSucceeded TaskState = "succeeded"
	TaskStateFailed    TaskState = "failed"
)

// Task is the GORM model for a background task.
type Task struct {
	ID             string        `gorm:"primaryKey;column:id;type:varchar(36)"`
	Type           TaskType      `gorm:"column:type;index:idx_task_type_state,priority:1;not null"`
	ComponentID    int64         `gorm:"column:component_id;index;not null"`
	Payload        store.JSONAny `gorm:"column:payload;type:text"`
	State          TaskState     `gorm:"column:state;index:idx_task_type_state,priority:2;index:idx_task_state;not null;default:queued"`
	CreatedAt      time.Time     `gorm:"column:created_at;not null"`
	StartedAt      *time.Time    `gorm:"column:started_at"`
	FinishedAt     *time.Time    `gorm:"column:finished_at"`
	AttemptCount   int           `gorm:"column:attempt_count;default:0"`
	LastError      string        `gorm:"column:last_error"`
	Result         string        `gorm:"column:result"`
	IdempotencyKey *string       `gorm:"column:idempotency_key;uniqueIndex:idx_task_idemp_key"`
	DurationMs     int64         `gorm:"column:duration_ms"`
}

// TableName returns the GORM table name.
func (Task) TableName() string { return "background_tasks" }

// IsTerminal returns true if the task is in a terminal state.
func (t *Task) IsTerminal() bool {
	return t.State == TaskStateSucceeded || t.State == TaskStateFailed
}
