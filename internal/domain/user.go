package domain

import "time"

// User owns agents, data sources and tasks. Plan selects usage limits.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage resource types recorded in the usage ledger.
const (
	UsageTasks  = "tasks"
	UsageTokens = "tokens"
)

// UsageRecord is one entry in the per-user usage ledger.
type UsageRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ResourceType string    `json:"resource_type"`
	Quantity     int       `json:"quantity"`
	TaskID       string    `json:"task_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MonthStart returns the first instant of t's calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
