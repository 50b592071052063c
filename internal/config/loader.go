package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields lets credentials be stored as ${ENV_VAR} references.
func expandSensitiveFields(cfg *Config) {
	cfg.OpenAI.APIKey = expandEnvVars(cfg.OpenAI.APIKey)
	cfg.OpenAI.Organization = expandEnvVars(cfg.OpenAI.Organization)
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	for i := range cfg.Gateway.Auth.Users {
		cfg.Gateway.Auth.Users[i].Token = expandEnvVars(cfg.Gateway.Auth.Users[i].Token)
	}
	cfg.Billing.PublishableKey = expandEnvVars(cfg.Billing.PublishableKey)
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped and variables already set are never overridden.
func LoadDotEnv(files ...string) error {
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return &ConfigError{Message: "failed to load env file: " + err.Error()}
	}
	return nil
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only. A .env file next to
// the config file is loaded first.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if err := LoadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	expandSensitiveFields(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields left empty by a partial config file.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.App.Name == "" {
		cfg.App.Name = d.App.Name
	}
	if cfg.App.URL == "" {
		cfg.App.URL = d.App.URL
	}
	if cfg.OpenAI.TimeoutSec == 0 {
		cfg.OpenAI.TimeoutSec = d.OpenAI.TimeoutSec
	}
	if cfg.Models.Default == "" {
		cfg.Models.Default = d.Models.Default
	}
	if cfg.Models.Embedding == "" {
		cfg.Models.Embedding = d.Models.Embedding
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = d.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = d.Gateway.Bind
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = d.Gateway.Auth.Mode
	}
	if cfg.Gateway.RateLimit.RequestsPerSecond == 0 {
		cfg.Gateway.RateLimit.RequestsPerSecond = d.Gateway.RateLimit.RequestsPerSecond
	}
	if cfg.Gateway.RateLimit.Burst == 0 {
		cfg.Gateway.RateLimit.Burst = d.Gateway.RateLimit.Burst
	}
	if cfg.Billing.DefaultPlan == "" {
		cfg.Billing.DefaultPlan = d.Billing.DefaultPlan
	}
	if cfg.Runner.TimeoutSec == 0 {
		cfg.Runner.TimeoutSec = d.Runner.TimeoutSec
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Style == "" {
		cfg.Logging.Style = d.Logging.Style
	}
}

// applyEnvOverrides reads TASKWEAVER_* variables and the provider variables
// shared with other tooling (OPENAI_API_KEY, APP_URL, APP_NAME).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TASKWEAVER_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("TASKWEAVER_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("TASKWEAVER_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Token = v
	}
	if v := os.Getenv("TASKWEAVER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("TASKWEAVER_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("TASKWEAVER_DEFAULT_MODEL"); v != "" {
		cfg.Models.Default = v
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" && cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("APP_URL"); v != "" {
		cfg.App.URL = v
	}
	if v := os.Getenv("APP_NAME"); v != "" {
		cfg.App.Name = v
	}
}
