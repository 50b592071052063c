package config

// Config is the root configuration for Task Weaver.
type Config struct {
	App     AppConfig     `yaml:"app,omitempty"`
	OpenAI  OpenAIConfig  `yaml:"openai,omitempty"`
	Ollama  *OllamaConfig `yaml:"ollama,omitempty"`
	Models  ModelsConfig  `yaml:"models,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	Gateway GatewayConfig `yaml:"gateway,omitempty"`
	Billing BillingConfig `yaml:"billing,omitempty"`
	Runner  RunnerConfig  `yaml:"runner,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Hooks   HooksConfig   `yaml:"hooks,omitempty"`
}

// AppConfig carries product identity shown by the CLI and the health endpoint.
type AppConfig struct {
	Name string `yaml:"name,omitempty"`
	URL  string `yaml:"url,omitempty"`
}

// OpenAIConfig configures the hosted completion provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"apiKey,omitempty"`
	BaseURL      string `yaml:"baseUrl,omitempty"`
	Organization string `yaml:"organization,omitempty"`
	TimeoutSec   int    `yaml:"timeoutSec,omitempty"`
}

// OllamaConfig enables a local OpenAI-compatible provider for the listed models.
type OllamaConfig struct {
	BaseURL string   `yaml:"baseUrl"`
	Models  []string `yaml:"models"`
}

// ModelsConfig selects the process-wide model defaults.
type ModelsConfig struct {
	Default   string `yaml:"default,omitempty"`
	Embedding string `yaml:"embedding,omitempty"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"` // empty means <data dir>/taskweaver.db
}

// GatewayConfig controls the HTTP API server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
	RateLimit      RateLimit   `yaml:"rateLimit,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode  string `yaml:"mode,omitempty"` // "token" | "none"
	Token string `yaml:"token,omitempty"`
	// Users binds tokens to user IDs. A request carrying one of these is
	// scoped to that user; the shared Token may act for any user.
	Users []UserToken `yaml:"users,omitempty"`
}

// UserToken is a bearer token that authenticates as a single user.
type UserToken struct {
	ID    string `yaml:"id"`
	Token string `yaml:"token"`
}

// RateLimit bounds requests per client address.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`
}

// BillingConfig selects the plan applied to users without a subscription.
type BillingConfig struct {
	DefaultPlan    string `yaml:"defaultPlan,omitempty"`
	PublishableKey string `yaml:"publishableKey,omitempty"`
}

// RunnerConfig tunes task execution.
type RunnerConfig struct {
	// OneTaskPerAgent rejects a run while another task of the same agent is in flight.
	OneTaskPerAgent bool `yaml:"oneTaskPerAgent,omitempty"`
	TimeoutSec      int  `yaml:"timeoutSec,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File  string `yaml:"file,omitempty"`
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
}

// HooksConfig defines shell commands run on task and gateway events.
type HooksConfig struct {
	TaskSubmitted []HookEntry `yaml:"taskSubmitted,omitempty"`
	TaskStarted   []HookEntry `yaml:"taskStarted,omitempty"`
	TaskCompleted []HookEntry `yaml:"taskCompleted,omitempty"`
	TaskFailed    []HookEntry `yaml:"taskFailed,omitempty"`
	GatewayStart  []HookEntry `yaml:"gatewayStart,omitempty"`
	GatewayStop   []HookEntry `yaml:"gatewayStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
