package models

import "time"

const (
	// DateLayout is the layout of date_of_creation and deadline (dd/MM/yy HH:mm).
	DateLayout = "02/01/06 15:04"
	// CreatedAtLayout is the sortable UTC layout of created_at.
	CreatedAtLayout = "2006-01-02T15:04:05Z"
)

// Task represents a row of the tasks table.
type Task struct {
	ID             int64  `json:"id"`
	UserID         int64  `json:"user_id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	DateOfCreation string `json:"date_of_creation"`
	Deadline       string `json:"deadline"`
	Completed      int    `json:"completed"` // 0 or 1
	CategoryID     *int64 `json:"category_id"`
	// CreatedAt is the creation instant as RFC3339 UTC text, used for window reports.
	CreatedAt string `json:"created_at"`
}

// StageReport counts a user's tasks by completion flag.
type StageReport struct {
	Completed   int64 `json:"completed"`
	Uncompleted int64 `json:"uncompleted"`
}

// StageResult is returned by writes that target a task by id.
type StageResult struct {
	RowsAffected int64 `json:"rows_affected"`
}

// Task event types published to the event stream.
const (
	EventTaskCreated      = "task.created"
	EventTaskStageChanged = "task.stage_changed"
	EventTaskDeleted      = "task.deleted"
)

// TaskEvent is the message payload for Kafka.
type TaskEvent struct {
	Type       string    `json:"type"`
	TaskID     int64     `json:"task_id"`
	UserID     int64     `json:"user_id"`
	Completed  *int      `json:"completed,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
