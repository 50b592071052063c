// Package llm defines the provider client interface used by task execution
// and the registry that maps model identifiers to configured providers.
package llm

import (
	"context"
	"time"
)

// Role constants for messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to Complete. Nil sampling fields are left
// to the provider's defaults.
type CompletionRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	Temperature      *float64  `json:"temperature,omitempty"`
	TopP             *float64  `json:"top_p,omitempty"`
	FrequencyPenalty *float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64  `json:"presence_penalty,omitempty"`
}

// CompletionResponse is the result of a completion. Usage is nil when the
// provider did not report token counts.
type CompletionResponse struct {
	Content      string        `json:"content"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        *Usage        `json:"usage,omitempty"`
	Model        string        `json:"model,omitempty"`
	Duration     time.Duration `json:"-"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// EmbeddingRequest asks for the embedding of a single text.
type EmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// EmbeddingResponse carries one vector.
type EmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Usage     *Usage    `json:"usage,omitempty"`
	Model     string    `json:"model,omitempty"`
}

// Client is the interface all LLM providers must implement.
type Client interface {
	// Complete sends a chat completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Embed returns the embedding vector for req.Input.
	Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error)

	// Name returns the provider name (e.g., "openai", "ollama").
	Name() string
}
