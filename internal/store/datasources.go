package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/soyeahso/taskweaver/internal/domain"
)

// DataSourceStore manages data sources with full-text search via SQLite FTS5.
type DataSourceStore struct {
	db *DB
}

// NewDataSourceStore creates a data source store using the given database.
func NewDataSourceStore(db *DB) *DataSourceStore {
	return &DataSourceStore{db: db}
}

const dataSourceColumns = `ds.id, ds.user_id, ds.name, ds.type, ds.content, ds.created_at, ds.updated_at`

// Create inserts a new data source.
func (s *DataSourceStore) Create(ctx context.Context, ds *domain.DataSource) error {
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	if ds.Type == "" {
		ds.Type = domain.DataSourceText
	}
	now, ts := s.db.timestamp()
	ds.CreatedAt, ds.UpdatedAt = now, now

	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO data_sources (id, user_id, name, type, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ds.ID, ds.UserID, ds.Name, string(ds.Type), ds.Content, ts, ts,
	)
	return err
}

// Get returns a data source by ID.
func (s *DataSourceStore) Get(ctx context.Context, id string) (*domain.DataSource, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT `+dataSourceColumns+` FROM data_sources ds WHERE ds.id = ?`, id)
	ds, err := scanDataSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ds, err
}

// UpdateContent replaces the name and content of a data source.
func (s *DataSourceStore) UpdateContent(ctx context.Context, id, name, content string) error {
	_, ts := s.db.timestamp()
	return affectedOne(s.db.sql.ExecContext(ctx,
		`UPDATE data_sources SET name = ?, content = ?, updated_at = ? WHERE id = ?`,
		name, content, ts, id))
}

// ListByUser returns a user's data sources, oldest first.
func (s *DataSourceStore) ListByUser(ctx context.Context, userID string) ([]domain.DataSource, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+dataSourceColumns+` FROM data_sources ds WHERE ds.user_id = ? ORDER BY ds.created_at, ds.rowid`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDataSources(rows)
}

// ListByIDs returns the user's data sources with the given IDs, in the order
// the IDs were given. Unknown IDs and other users' sources are reported as
// ErrNotFound.
func (s *DataSourceStore) ListByIDs(ctx context.Context, userID string, ids []string) ([]domain.DataSource, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+dataSourceColumns+` FROM data_sources ds WHERE ds.user_id = ? AND ds.id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found, err := scanDataSources(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.DataSource, len(found))
	for _, ds := range found {
		byID[ds.ID] = ds
	}
	out := make([]domain.DataSource, 0, len(ids))
	for _, id := range ids {
		ds, ok := byID[id]
		if !ok {
			return nil, ErrNotFound
		}
		out = append(out, ds)
	}
	return out, nil
}

// Search finds a user's data sources matching an FTS5 query, best match
// first. A limit of 0 defaults to 20.
func (s *DataSourceStore) Search(ctx context.Context, userID, query string, limit int) ([]domain.DataSource, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+dataSourceColumns+`
		 FROM data_sources_fts
		 JOIN data_sources ds ON ds.rowid = data_sources_fts.rowid
		 WHERE data_sources_fts MATCH ? AND ds.user_id = ?
		 ORDER BY rank
		 LIMIT ?`,
		query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDataSources(rows)
}

// TermsQuery turns free text into an FTS5 query that matches rows
// containing every word, so user input cannot inject query syntax.
func TermsQuery(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		words[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return strings.Join(words, " ")
}

// Delete removes a data source.
func (s *DataSourceStore) Delete(ctx context.Context, id string) error {
	return affectedOne(s.db.sql.ExecContext(ctx, `DELETE FROM data_sources WHERE id = ?`, id))
}

// CountByUser returns how many data sources a user owns.
func (s *DataSourceStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM data_sources WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

func scanDataSource(r rowScanner) (*domain.DataSource, error) {
	var ds domain.DataSource
	var typ, createdAt, updatedAt string
	if err := r.Scan(&ds.ID, &ds.UserID, &ds.Name, &typ, &ds.Content, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	ds.Type = domain.DataSourceType(typ)
	ds.CreatedAt = parseTime(createdAt)
	ds.UpdatedAt = parseTime(updatedAt)
	return &ds, nil
}

func scanDataSources(rows *sql.Rows) ([]domain.DataSource, error) {
	out := []domain.DataSource{}
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ds)
	}
	return out, rows.Err()
}
