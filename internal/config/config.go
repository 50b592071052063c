package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultAppName        = "Task Weaver AI"
	DefaultAppURL         = "http://localhost:5173"
	DefaultModel          = "gpt-3.5-turbo"
	DefaultEmbeddingModel = "text-embedding-ada-002"
	DefaultGatewayPort    = 18790
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		App: AppConfig{
			Name: DefaultAppName,
			URL:  DefaultAppURL,
		},
		OpenAI: OpenAIConfig{
			TimeoutSec: 120,
		},
		Models: ModelsConfig{
			Default:   DefaultModel,
			Embedding: DefaultEmbeddingModel,
		},
		Gateway: GatewayConfig{
			Port: DefaultGatewayPort,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
			RateLimit: RateLimit{
				RequestsPerSecond: 5,
				Burst:             20,
			},
		},
		Billing: BillingConfig{
			DefaultPlan: "basic",
		},
		Runner: RunnerConfig{
			TimeoutSec: 180,
		},
		Logging: LoggingConfig{
			Level: "info",
			Style: "pretty",
		},
	}
}

// MissingCredentials lists the environment variables whose values are absent
// from the effective config. Callers warn rather than fail on these.
func MissingCredentials(cfg *Config) []string {
	var missing []string
	if cfg.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if cfg.Gateway.Auth.Mode == "token" && cfg.Gateway.Auth.Token == "" {
		missing = append(missing, "TASKWEAVER_GATEWAY_TOKEN")
	}
	return missing
}
