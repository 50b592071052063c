package domain

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskRunning, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

// CanTransition reports whether a task may move from one status to another.
// Tasks go pending -> running -> completed|failed and never back.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskPending:
		return to == TaskRunning
	case TaskRunning:
		return to == TaskCompleted || to == TaskFailed
	}
	return false
}

// Task is one execution of an agent against an input.
type Task struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	AgentID       string     `json:"agent_id"`
	Input         string     `json:"input"`
	DataSourceIDs []string   `json:"data_source_ids,omitempty"`
	Status        TaskStatus `json:"status"`
	Output        string     `json:"output,omitempty"`
	Error         string     `json:"error,omitempty"`
	ErrorKind     string     `json:"error_kind,omitempty"`
	Model         string     `json:"model,omitempty"`
	TokensUsed    int        `json:"tokens_used"`
	CostCents     float64    `json:"cost_cents"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// TaskFilter narrows task listings. Zero values mean "any".
type TaskFilter struct {
	UserID  string
	AgentID string
	Status  TaskStatus
	Limit   int
}
