package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/soyeahso/taskweaver/internal/domain"
)

// UserStore persists users and their plan.
type UserStore struct {
	db *DB
}

// NewUserStore creates a user store using the given database.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// Ensure returns the user with id, creating it on the given plan if absent.
func (s *UserStore) Ensure(ctx context.Context, id, plan string) (*domain.User, error) {
	_, ts := s.db.timestamp()
	if _, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO users (id, plan, created_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, plan, ts,
	); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Get returns a user by ID.
func (s *UserStore) Get(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	var createdAt string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT id, email, plan, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.Plan, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// SetPlan changes a user's plan.
func (s *UserStore) SetPlan(ctx context.Context, id, plan string) error {
	return affectedOne(s.db.sql.ExecContext(ctx, `UPDATE users SET plan = ? WHERE id = ?`, plan, id))
}

// SetEmail records the user's email address.
func (s *UserStore) SetEmail(ctx context.Context, id, email string) error {
	return affectedOne(s.db.sql.ExecContext(ctx, `UPDATE users SET email = ? WHERE id = ?`, email, id))
}
