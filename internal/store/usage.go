package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/taskweaver/internal/domain"
)

// UsageStore is the append-only per-user usage ledger.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a usage store using the given database.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// Track appends a usage record.
func (s *UsageStore) Track(ctx context.Context, rec *domain.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now, ts := s.db.timestamp()
	rec.CreatedAt = now
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO usage_tracking (id, user_id, resource_type, quantity, task_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.ResourceType, rec.Quantity, rec.TaskID, ts)
	return err
}

// Summary totals a user's usage per resource type since the given instant.
func (s *UsageStore) Summary(ctx context.Context, userID string, since time.Time) (map[string]int, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT resource_type, SUM(quantity) FROM usage_tracking
		 WHERE user_id = ? AND created_at >= ?
		 GROUP BY resource_type`,
		userID, formatTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var typ string
		var total int
		if err := rows.Scan(&typ, &total); err != nil {
			return nil, err
		}
		out[typ] = total
	}
	return out, rows.Err()
}
