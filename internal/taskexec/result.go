package taskexec

import "github.com/soyeahso/taskweaver/internal/llm"

// Result is the outcome of a service operation. Exactly one of Data and
// Error is set.
type Result[T any] struct {
	Success bool          `json:"success"`
	Data    *T            `json:"data,omitempty"`
	Error   *ServiceError `json:"error,omitempty"`
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Success: true, Data: &v}
}

// Fail wraps a classified failure.
func Fail[T any](err *ServiceError) Result[T] {
	return Result[T]{Error: err}
}

// TaskResult is the successful outcome of ExecuteAgentTask.
type TaskResult struct {
	Output       string     `json:"output"`
	Usage        *llm.Usage `json:"usage,omitempty"`
	TokensUsed   int        `json:"tokens_used"`
	DurationMs   int64      `json:"duration_ms"`
	CostCents    float64    `json:"cost"`
	Model        string     `json:"model"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

// EmbeddingResult is the successful outcome of GenerateEmbeddings.
type EmbeddingResult struct {
	Embedding []float32  `json:"embedding"`
	Usage     *llm.Usage `json:"usage,omitempty"`
	Model     string     `json:"model"`
}

// Validation reports every problem found in a model configuration.
type Validation struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}
