package domain

import "time"

// DataSourceType describes where a data source's content came from.
type DataSourceType string

const (
	DataSourceText DataSourceType = "text"
	DataSourceURL  DataSourceType = "url"
	DataSourceFile DataSourceType = "file"
)

// DataSource is a named piece of reference text attached to task runs.
// Content may be empty.
type DataSource struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Name      string         `json:"name"`
	Type      DataSourceType `json:"type"`
	Content   string         `json:"content,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Valid reports whether t is a known data source type.
func (t DataSourceType) Valid() bool {
	switch t {
	case DataSourceText, DataSourceURL, DataSourceFile:
		return true
	}
	return false
}
