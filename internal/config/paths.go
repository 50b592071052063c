package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".taskweaver"

// Paths holds resolved filesystem paths for Task Weaver data.
type Paths struct {
	Base     string // ~/.taskweaver
	Config   string // ~/.taskweaver/config.yaml
	EnvFile  string // ~/.taskweaver/.env
	Data     string // ~/.taskweaver/data
	Database string // ~/.taskweaver/data/taskweaver.db
	Logs     string // ~/.taskweaver/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If TASKWEAVER_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("TASKWEAVER_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	data := filepath.Join(base, "data")
	return Paths{
		Base:     base,
		Config:   filepath.Join(base, "config.yaml"),
		EnvFile:  filepath.Join(base, ".env"),
		Data:     data,
		Database: filepath.Join(data, "taskweaver.db"),
		Logs:     filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// DatabasePath returns the configured store path, or the default under Data.
func (p Paths) DatabasePath(cfg *Config) string {
	if cfg.Store.Path != "" {
		return cfg.Store.Path
	}
	return p.Database
}
