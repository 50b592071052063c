package domain

import "time"

// AgentStatus controls whether an agent accepts new tasks.
type AgentStatus string

const (
	AgentActive AgentStatus = "active"
	AgentPaused AgentStatus = "paused"
)

// Agent is a user-owned prompt template plus generation parameters.
// PromptTemplate may contain the {input}, {context} and {timestamp}
// placeholders.
type Agent struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	PromptTemplate string       `json:"prompt_template"`
	ModelConfig    *ModelConfig `json:"model_config,omitempty"`
	Status         AgentStatus  `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Model returns the configured model identifier, or "" when unset.
func (a *Agent) Model() string {
	if a == nil || a.ModelConfig == nil {
		return ""
	}
	return a.ModelConfig.Model
}

// ModelConfig holds optional generation parameters. A nil field means
// "use the default for the model".
type ModelConfig struct {
	Model            string   `json:"model,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

// Float returns a pointer to v, for building ModelConfig literals.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
