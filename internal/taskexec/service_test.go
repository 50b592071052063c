package taskexec

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/soyeahso/taskweaver/internal/domain"
	"github.com/soyeahso/taskweaver/internal/llm"
	"github.com/soyeahso/taskweaver/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 4, 9, 30, 15, 123_000_000, time.UTC)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// steppingClock advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

func newTestService(t *testing.T, client *llm.MockClient, opts ...Option) *Service {
	t.Helper()
	reg := llm.NewRegistry(silentLog())
	reg.Register("openai", client)
	reg.SetFallback("openai")
	opts = append([]Option{WithClock(steppingClock(testNow, 250*time.Millisecond))}, opts...)
	return New(reg, silentLog(), opts...)
}

// capture records the last completion request and answers with resp.
func capture(resp *llm.CompletionResponse, last *llm.CompletionRequest) *llm.MockClient {
	return &llm.MockClient{
		ProviderName: "openai",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			*last = req
			return resp, nil
		},
	}
}

func failing(err error) *llm.MockClient {
	return &llm.MockClient{
		ProviderName: "openai",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, err
		},
		EmbedFunc: func(ctx context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
			return nil, err
		},
	}
}

func testAgent(cfg *domain.ModelConfig) *domain.Agent {
	return &domain.Agent{
		ID:             "agent-1",
		Name:           "Researcher",
		PromptTemplate: "You research.\nTask: {input}{context}\nNow: {timestamp}",
		ModelConfig:    cfg,
	}
}

func TestExecuteAgentTaskBuildsMessages(t *testing.T) {
	var req llm.CompletionRequest
	svc := newTestService(t, capture(&llm.CompletionResponse{Content: "ok"}, &req))

	sources := []domain.DataSource{
		{ID: "ds-1", Name: "Pricing page", Content: "Plans start at $15"},
		{ID: "ds-2", Name: "Empty notes"},
	}
	res, err := svc.ExecuteAgentTask(context.Background(), testAgent(nil), "Summarize pricing", sources)
	require.NoError(t, err)
	require.True(t, res.Success)

	want := "You research.\nTask: Summarize pricing" +
		"\n\nRelevant context:\n- Pricing page: Plans start at $15\n- Empty notes: No content available" +
		"\nNow: 2026-05-04T09:30:15.123Z"
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: want}, req.Messages[0])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "Summarize pricing"}, req.Messages[1])
}

func TestExecuteAgentTaskNoSourcesEmptyContext(t *testing.T) {
	var req llm.CompletionRequest
	svc := newTestService(t, capture(&llm.CompletionResponse{Content: "ok"}, &req))

	agent := testAgent(nil)
	agent.PromptTemplate = "[{context}] {input}"
	_, err := svc.ExecuteAgentTask(context.Background(), agent, "go", nil)
	require.NoError(t, err)
	assert.Equal(t, "[] go", req.Messages[0].Content)
}

func TestExecuteAgentTaskMergesModelDefaults(t *testing.T) {
	tests := []struct {
		name string
		cfg  *domain.ModelConfig
		want GenerationConfig
	}{
		{
			name: "no config uses fallback model",
			cfg:  nil,
			want: GenerationConfig{Model: "gpt-3.5-turbo", Temperature: 0.7, MaxTokens: 1500, TopP: 1},
		},
		{
			name: "known model with override",
			cfg:  &domain.ModelConfig{Model: "gpt-4", Temperature: domain.Float(0.2)},
			want: GenerationConfig{Model: "gpt-4", Temperature: 0.2, MaxTokens: 2000, TopP: 1},
		},
		{
			name: "turbo defaults",
			cfg:  &domain.ModelConfig{Model: "gpt-4-turbo-preview", PresencePenalty: domain.Float(0.5)},
			want: GenerationConfig{Model: "gpt-4-turbo-preview", Temperature: 0.7, MaxTokens: 4000, TopP: 1, PresencePenalty: 0.5},
		},
		{
			name: "model without defaults keeps identifier",
			cfg:  &domain.ModelConfig{Model: "gpt-3.5-turbo-16k", MaxTokens: domain.Int(3000)},
			want: GenerationConfig{Model: "gpt-3.5-turbo-16k", Temperature: 0.7, MaxTokens: 3000, TopP: 1},
		},
		{
			name: "explicit zero temperature is kept",
			cfg:  &domain.ModelConfig{Temperature: domain.Float(0), FrequencyPenalty: domain.Float(1)},
			want: GenerationConfig{Model: "gpt-3.5-turbo", Temperature: 0, MaxTokens: 1500, TopP: 1, FrequencyPenalty: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req llm.CompletionRequest
			svc := newTestService(t, capture(&llm.CompletionResponse{Content: "ok"}, &req))

			_, err := svc.ExecuteAgentTask(context.Background(), testAgent(tt.cfg), "input", nil)
			require.NoError(t, err)

			assert.Equal(t, tt.want.Model, req.Model)
			assert.Equal(t, tt.want.MaxTokens, req.MaxTokens)
			require.NotNil(t, req.Temperature)
			assert.Equal(t, tt.want.Temperature, *req.Temperature)
			assert.Equal(t, tt.want.TopP, *req.TopP)
			assert.Equal(t, tt.want.FrequencyPenalty, *req.FrequencyPenalty)
			assert.Equal(t, tt.want.PresencePenalty, *req.PresencePenalty)
		})
	}
}

func TestExecuteAgentTaskConfiguredDefaultModel(t *testing.T) {
	var req llm.CompletionRequest
	svc := newTestService(t, capture(&llm.CompletionResponse{Content: "ok"}, &req), WithDefaultModel("gpt-4"))

	_, err := svc.ExecuteAgentTask(context.Background(), testAgent(nil), "input", nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", req.Model)
	assert.Equal(t, 2000, req.MaxTokens)
}

func TestExecuteAgentTaskSuccessAccounting(t *testing.T) {
	var req llm.CompletionRequest
	svc := newTestService(t, capture(&llm.CompletionResponse{
		Content:      "Here is the summary",
		FinishReason: "stop",
		Model:        "gpt-3.5-turbo",
		Usage:        &llm.Usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000},
	}, &req))

	res, err := svc.ExecuteAgentTask(context.Background(), testAgent(nil), "summarize", nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Nil(t, res.Error)
	require.NotNil(t, res.Data)

	assert.Equal(t, "Here is the summary", res.Data.Output)
	assert.Equal(t, 2000, res.Data.TokensUsed)
	assert.Equal(t, 0.2, res.Data.CostCents)
	assert.Equal(t, int64(250), res.Data.DurationMs)
	assert.Equal(t, "gpt-3.5-turbo", res.Data.Model)
	assert.Equal(t, "stop", res.Data.FinishReason)
}

func TestExecuteAgentTaskCostUsesReportedModel(t *testing.T) {
	var req llm.CompletionRequest
	svc := newTestService(t, capture(&llm.CompletionResponse{
		Content: "x",
		Model:   "gpt-4-0613",
		Usage:   &llm.Usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000},
	}, &req))

	res, err := svc.ExecuteAgentTask(context.Background(), testAgent(&domain.ModelConfig{Model: "gpt-4"}), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4-0613", res.Data.Model)
	assert.Equal(t, 0.2, res.Data.CostCents, "unlisted snapshot is priced as economy")
}

func TestExecuteAgentTaskMissingUsageAndChoices(t *testing.T) {
	var req llm.CompletionRequest
	svc := newTestService(t, capture(&llm.CompletionResponse{}, &req))

	res, err := svc.ExecuteAgentTask(context.Background(), testAgent(&domain.ModelConfig{Model: "gpt-4"}), "x", nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "", res.Data.Output)
	assert.Equal(t, 0, res.Data.TokensUsed)
	assert.Equal(t, 0.0, res.Data.CostCents)
	assert.Nil(t, res.Data.Usage)
	assert.Equal(t, "gpt-4", res.Data.Model, "falls back to the requested model")
}

func TestExecuteAgentTaskClassifiesProviderErrors(t *testing.T) {
	tests := []struct {
		code    string
		kind    ErrorKind
		message string
	}{
		{"insufficient_quota", KindQuotaExceeded, "OpenAI API quota exceeded. Please check your billing settings."},
		{"invalid_api_key", KindInvalidAPIKey, "Invalid OpenAI API key. Please check your configuration."},
		{"rate_limit_exceeded", KindRateLimit, "Rate limit exceeded. Please try again later."},
		{"context_length_exceeded", KindContextTooLong, "Input text is too long for the selected model."},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			perr := &llm.ProviderError{Provider: "openai", Status: 429, Code: tt.code, Message: "raw provider text"}
			svc := newTestService(t, failing(perr))

			res, err := svc.ExecuteAgentTask(context.Background(), testAgent(nil), "x", nil)
			require.NoError(t, err, "provider failures must not escape as errors")
			assert.False(t, res.Success)
			assert.Nil(t, res.Data)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.kind, res.Error.Kind)
			assert.Equal(t, tt.message, res.Error.Message)
			assert.Equal(t, perr.Error(), res.Error.Details)
		})
	}
}

func TestExecuteAgentTaskUnknownErrors(t *testing.T) {
	t.Run("provider error with unrecognized code", func(t *testing.T) {
		svc := newTestService(t, failing(&llm.ProviderError{Provider: "openai", Status: 500, Code: "server_error", Message: "The server had an error"}))
		res, err := svc.ExecuteAgentTask(context.Background(), testAgent(nil), "x", nil)
		require.NoError(t, err)
		assert.Equal(t, KindUnknown, res.Error.Kind)
		assert.Equal(t, "The server had an error", res.Error.Message)
	})

	t.Run("transport error", func(t *testing.T) {
		svc := newTestService(t, failing(errors.New("dial tcp: connection refused")))
		res, err := svc.ExecuteAgentTask(context.Background(), testAgent(nil), "x", nil)
		require.NoError(t, err)
		assert.Equal(t, KindUnknown, res.Error.Kind)
		assert.Equal(t, "dial tcp: connection refused", res.Error.Message)
		assert.Equal(t, "dial tcp: connection refused", res.Error.Details)
	})

	t.Run("error without message", func(t *testing.T) {
		svc := newTestService(t, failing(errors.New("")))
		res, err := svc.ExecuteAgentTask(context.Background(), testAgent(nil), "x", nil)
		require.NoError(t, err)
		assert.Equal(t, "An unexpected error occurred", res.Error.Message)
	})

	t.Run("no provider registered", func(t *testing.T) {
		svc := New(llm.NewRegistry(silentLog()), silentLog())
		res, err := svc.ExecuteAgentTask(context.Background(), testAgent(nil), "x", nil)
		require.NoError(t, err)
		assert.Equal(t, KindUnknown, res.Error.Kind)
		assert.Contains(t, res.Error.Message, "no LLM provider")
	})
}

func TestExecuteAgentTaskContractViolations(t *testing.T) {
	svc := newTestService(t, &llm.MockClient{ProviderName: "openai"})
	ctx := context.Background()

	_, err := svc.ExecuteAgentTask(ctx, nil, "x", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	agent := testAgent(nil)
	agent.PromptTemplate = "  "
	_, err = svc.ExecuteAgentTask(ctx, agent, "x", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.ExecuteAgentTask(ctx, testAgent(nil), "", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTestAgentDefaultSampleInput(t *testing.T) {
	var req llm.CompletionRequest
	svc := newTestService(t, capture(&llm.CompletionResponse{Content: "I am a researcher"}, &req))

	res, err := svc.TestAgent(context.Background(), testAgent(nil), "")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "I am a researcher", res.Data.Output)
	assert.Equal(t, DefaultSampleInput, req.Messages[1].Content)
	assert.NotContains(t, req.Messages[0].Content, "Relevant context")
}

func TestTestAgentWithSample(t *testing.T) {
	var req llm.CompletionRequest
	svc := newTestService(t, capture(&llm.CompletionResponse{Content: "pong"}, &req))

	_, err := svc.TestAgent(context.Background(), testAgent(nil), "ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", req.Messages[1].Content)
}

func TestGenerateEmbeddings(t *testing.T) {
	var got llm.EmbeddingRequest
	client := &llm.MockClient{
		ProviderName: "openai",
		EmbedFunc: func(ctx context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
			got = req
			return &llm.EmbeddingResponse{
				Embedding: []float32{0.5, 0.25},
				Usage:     &llm.Usage{PromptTokens: 2, TotalTokens: 2},
			}, nil
		},
	}
	svc := newTestService(t, client)

	res, err := svc.GenerateEmbeddings(context.Background(), "hello world", "")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "text-embedding-ada-002", got.Model)
	assert.Equal(t, "hello world", got.Input)
	assert.Equal(t, []float32{0.5, 0.25}, res.Data.Embedding)
	assert.Equal(t, 2, res.Data.Usage.TotalTokens)
	assert.Equal(t, "text-embedding-ada-002", res.Data.Model)
}

func TestGenerateEmbeddingsCustomModelAndFailure(t *testing.T) {
	svc := newTestService(t, failing(&llm.ProviderError{Provider: "openai", Code: "invalid_api_key", Message: "bad key"}),
		WithEmbeddingModel("text-embedding-3-small"))

	res, err := svc.GenerateEmbeddings(context.Background(), "x", "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, KindInvalidAPIKey, res.Error.Kind)

	_, err = svc.GenerateEmbeddings(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestValidateModelConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  domain.ModelConfig
		want []string
	}{
		{
			name: "all out of range",
			cfg:  domain.ModelConfig{Temperature: domain.Float(3), MaxTokens: domain.Int(5000), TopP: domain.Float(2)},
			want: []string{
				"Temperature must be between 0 and 2",
				"Max tokens must be between 1 and 4000",
				"Top P must be between 0 and 1",
			},
		},
		{
			name: "boundaries are valid",
			cfg:  domain.ModelConfig{Temperature: domain.Float(2), MaxTokens: domain.Int(1), TopP: domain.Float(0)},
			want: []string{},
		},
		{
			name: "unset fields are not checked",
			cfg:  domain.ModelConfig{Model: "gpt-4"},
			want: []string{},
		},
		{
			name: "negative temperature and zero tokens",
			cfg:  domain.ModelConfig{Temperature: domain.Float(-0.1), MaxTokens: domain.Int(0)},
			want: []string{"Temperature must be between 0 and 2", "Max tokens must be between 1 and 4000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ValidateModelConfig(tt.cfg)
			assert.Equal(t, len(tt.want) == 0, v.IsValid)
			assert.Equal(t, tt.want, v.Errors)
		})
	}
}

func TestResultJSON(t *testing.T) {
	ok, err := json.Marshal(Ok(TaskResult{Output: "hi", TokensUsed: 3, Model: "gpt-4"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":{"output":"hi","tokens_used":3,"duration_ms":0,"cost":0,"model":"gpt-4"}}`, string(ok))

	failed, err := json.Marshal(Fail[TaskResult](&ServiceError{Kind: KindRateLimit, Message: "slow down"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":{"code":"RATE_LIMIT","message":"slow down"}}`, string(failed))
}
