package config

import (
	"cmp"
	"fmt"
	"net/url"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	oneOf := func(path, value string, valid []string) {
		if value != "" && !slices.Contains(valid, value) {
			add(path, "must be one of %v, got %q", valid, value)
		}
	}

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	oneOf("gateway.bind", cfg.Gateway.Bind, []string{"loopback", "lan", "custom"})
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		add("gateway.customBindHost", "required when bind is custom")
	}
	oneOf("gateway.auth.mode", cfg.Gateway.Auth.Mode, []string{"token", "none"})
	seen := map[string]bool{}
	for i, u := range cfg.Gateway.Auth.Users {
		path := fmt.Sprintf("gateway.auth.users[%d]", i)
		if u.ID == "" {
			add(path+".id", "id is required")
		}
		switch {
		case u.Token == "":
			add(path+".token", "token is required")
		case u.Token == cfg.Gateway.Auth.Token:
			add(path+".token", "must differ from gateway.auth.token")
		case seen[u.Token]:
			add(path+".token", "token is already bound to another user")
		}
		seen[u.Token] = true
	}
	if cfg.Gateway.RateLimit.RequestsPerSecond < 0 {
		add("gateway.rateLimit.requestsPerSecond", "must not be negative")
	}
	if cfg.Gateway.RateLimit.Burst < 0 {
		add("gateway.rateLimit.burst", "must not be negative")
	}

	if cfg.OpenAI.BaseURL != "" {
		if u, err := url.Parse(cfg.OpenAI.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("openai.baseUrl", "must be an absolute URL, got %q", cfg.OpenAI.BaseURL)
		}
	}
	if cfg.OpenAI.TimeoutSec < 0 {
		add("openai.timeoutSec", "must not be negative")
	}

	if cfg.Ollama != nil {
		if cfg.Ollama.BaseURL == "" {
			add("ollama.baseUrl", "baseUrl is required")
		}
		if len(cfg.Ollama.Models) == 0 {
			add("ollama.models", "at least one model is required")
		}
	}

	oneOf("billing.defaultPlan", cfg.Billing.DefaultPlan, []string{"basic", "pro", "premium"})

	oneOf("logging.level", cfg.Logging.Level, []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"})
	oneOf("logging.style", cfg.Logging.Style, []string{"pretty", "json"})

	for name, entries := range map[string][]HookEntry{
		"hooks.taskSubmitted": cfg.Hooks.TaskSubmitted,
		"hooks.taskStarted":   cfg.Hooks.TaskStarted,
		"hooks.taskCompleted": cfg.Hooks.TaskCompleted,
		"hooks.taskFailed":    cfg.Hooks.TaskFailed,
		"hooks.gatewayStart":  cfg.Hooks.GatewayStart,
		"hooks.gatewayStop":   cfg.Hooks.GatewayStop,
	} {
		for i, h := range entries {
			if h.Command == "" {
				add(fmt.Sprintf("%s[%d].command", name, i), "command is required")
			}
		}
	}

	slices.SortStableFunc(issues, func(a, b ValidationIssue) int {
		return cmp.Compare(a.Path, b.Path)
	})
	return issues
}

// ValidateRaw checks a generic config map, as edited by the config command,
// the same way Load would see it.
func ValidateRaw(raw map[string]any) ([]ValidationIssue, error) {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	applyDefaults(&cfg)
	return Validate(&cfg), nil
}
