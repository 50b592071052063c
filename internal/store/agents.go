package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/soyeahso/taskweaver/internal/domain"
)

// AgentStore persists agents. Model configuration is stored as JSON.
type AgentStore struct {
	db *DB
}

// NewAgentStore creates an agent store using the given database.
func NewAgentStore(db *DB) *AgentStore {
	return &AgentStore{db: db}
}

const agentColumns = `id, user_id, name, description, prompt_template, model_config, status, created_at, updated_at`

// Create inserts a new agent, assigning an ID and timestamps.
func (s *AgentStore) Create(ctx context.Context, a *domain.Agent) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = domain.AgentActive
	}
	now, ts := s.db.timestamp()
	a.CreatedAt, a.UpdatedAt = now, now

	cfg, err := encodeModelConfig(a.ModelConfig)
	if err != nil {
		return err
	}
	_, err = s.db.sql.ExecContext(ctx,
		`INSERT INTO agents (`+agentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, a.Description, a.PromptTemplate, cfg, string(a.Status), ts, ts,
	)
	return err
}

// Get returns an agent by ID.
func (s *AgentStore) Get(ctx context.Context, id string) (*domain.Agent, error) {
	row := s.db.sql.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListByUser returns a user's agents, oldest first.
func (s *AgentStore) ListByUser(ctx context.Context, userID string) ([]domain.Agent, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE user_id = ? ORDER BY created_at, rowid`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := []domain.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// Update saves the mutable fields of an agent.
func (s *AgentStore) Update(ctx context.Context, a *domain.Agent) error {
	cfg, err := encodeModelConfig(a.ModelConfig)
	if err != nil {
		return err
	}
	now, ts := s.db.timestamp()
	err = affectedOne(s.db.sql.ExecContext(ctx,
		`UPDATE agents SET name = ?, description = ?, prompt_template = ?, model_config = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		a.Name, a.Description, a.PromptTemplate, cfg, string(a.Status), ts, a.ID,
	))
	if err == nil {
		a.UpdatedAt = now
	}
	return err
}

// Delete removes an agent and, by cascade, its tasks.
func (s *AgentStore) Delete(ctx context.Context, id string) error {
	return affectedOne(s.db.sql.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id))
}

// CountByUser returns how many agents a user owns.
func (s *AgentStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(r rowScanner) (*domain.Agent, error) {
	var a domain.Agent
	var cfg sql.NullString
	var status, createdAt, updatedAt string
	if err := r.Scan(&a.ID, &a.UserID, &a.Name, &a.Description, &a.PromptTemplate,
		&cfg, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Status = domain.AgentStatus(status)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	if cfg.Valid && cfg.String != "" {
		a.ModelConfig = &domain.ModelConfig{}
		if err := json.Unmarshal([]byte(cfg.String), a.ModelConfig); err != nil {
			return nil, fmt.Errorf("decoding model config of agent %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func encodeModelConfig(cfg *domain.ModelConfig) (sql.NullString, error) {
	if cfg == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding model config: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
