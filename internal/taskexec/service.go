// Package taskexec turns an agent, a task input and optional data sources
// into a single provider completion with token and cost accounting.
package taskexec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/taskweaver/internal/domain"
	"github.com/soyeahso/taskweaver/internal/llm"
	"github.com/soyeahso/taskweaver/internal/logging"
)

// DefaultSampleInput is the input TestAgent sends when no sample is given.
const DefaultSampleInput = "Hello, please introduce yourself and explain what you can do."

// Resolver returns the provider client serving a model. *llm.Registry
// satisfies it.
type Resolver interface {
	Resolve(model string) (llm.Client, error)
}

// Service executes agent tasks. It holds no per-call state and is safe for
// concurrent use.
type Service struct {
	providers      Resolver
	log            *logging.Logger
	now            func() time.Time
	defaultModel   string
	embeddingModel string
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now, for prompt timestamps and call timing.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDefaultModel sets the model used by agents that name none.
func WithDefaultModel(model string) Option {
	return func(s *Service) {
		if model != "" {
			s.defaultModel = model
		}
	}
}

// WithEmbeddingModel sets the model used when GenerateEmbeddings gets none.
func WithEmbeddingModel(model string) Option {
	return func(s *Service) {
		if model != "" {
			s.embeddingModel = model
		}
	}
}

// New creates a Service backed by the given providers.
func New(providers Resolver, log *logging.Logger, opts ...Option) *Service {
	s := &Service{
		providers:      providers,
		log:            log.Sub("taskexec"),
		now:            time.Now,
		defaultModel:   FallbackModel,
		embeddingModel: DefaultEmbeddingModel,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ModelConfigFor returns the effective generation parameters for agent.
func (s *Service) ModelConfigFor(agent *domain.Agent) GenerationConfig {
	var cfg *domain.ModelConfig
	if agent != nil {
		cfg = agent.ModelConfig
	}
	return ResolveModelConfig(cfg, s.defaultModel)
}

// ExecuteAgentTask renders the agent's prompt for input and sources, sends
// it to the provider and reports output, usage, timing and cost. Provider
// failures are returned as a failed Result; the error return is reserved
// for contract violations and wraps ErrInvalidArgument.
func (s *Service) ExecuteAgentTask(ctx context.Context, agent *domain.Agent, input string, sources []domain.DataSource) (Result[TaskResult], error) {
	if agent == nil {
		return Result[TaskResult]{}, fmt.Errorf("%w: agent is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(agent.PromptTemplate) == "" {
		return Result[TaskResult]{}, fmt.Errorf("%w: agent %q has no prompt template", ErrInvalidArgument, agent.ID)
	}
	if input == "" {
		return Result[TaskResult]{}, fmt.Errorf("%w: task input is empty", ErrInvalidArgument)
	}

	params := s.ModelConfigFor(agent)
	prompt := BuildPrompt(agent.PromptTemplate, input, BuildContext(sources), s.now())
	log := s.log.With("agent_id", agent.ID)

	// The raw input is sent again as the user turn even though the
	// template usually embeds it already.
	req := llm.CompletionRequest{
		Model: params.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompt},
			{Role: llm.RoleUser, Content: input},
		},
		MaxTokens:        params.MaxTokens,
		Temperature:      &params.Temperature,
		TopP:             &params.TopP,
		FrequencyPenalty: &params.FrequencyPenalty,
		PresencePenalty:  &params.PresencePenalty,
	}

	log.Debug().
		Str("model", params.Model).
		Int("sources", len(sources)).
		Int("prompt_chars", len(prompt)).
		Msg("executing agent task")

	resp, durationMs, err := s.complete(ctx, req)
	if err != nil {
		serr := Classify(err)
		log.Warn().
			Str("model", params.Model).
			Str("kind", string(serr.Kind)).
			Str("details", serr.Details).
			Msg("agent task failed")
		return Fail[TaskResult](serr), nil
	}

	model := resp.Model
	if model == "" {
		model = params.Model
	}
	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	result := TaskResult{
		Output:       resp.Content,
		Usage:        resp.Usage,
		TokensUsed:   tokens,
		DurationMs:   durationMs,
		CostCents:    CalculateCost(resp.Usage, model),
		Model:        model,
		FinishReason: resp.FinishReason,
	}

	log.Info().
		Str("model", model).
		Int("tokens", tokens).
		Int64("duration_ms", durationMs).
		Float64("cost", result.CostCents).
		Msg("agent task completed")
	return Ok(result), nil
}

// complete resolves the provider and times the call itself, excluding
// prompt construction.
func (s *Service) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, int64, error) {
	client, err := s.providers.Resolve(req.Model)
	if err != nil {
		return nil, 0, err
	}
	start := s.now()
	resp, err := client.Complete(ctx, req)
	elapsed := s.now().Sub(start).Milliseconds()
	if err != nil {
		return nil, elapsed, err
	}
	return resp, elapsed, nil
}

// TestAgent runs the agent once with sample, or DefaultSampleInput when sample is
// empty, and no data sources.
func (s *Service) TestAgent(ctx context.Context, agent *domain.Agent, sample string) (Result[TaskResult], error) {
	if sample == "" {
		sample = DefaultSampleInput
	}
	return s.ExecuteAgentTask(ctx, agent, sample, nil)
}

// GenerateEmbeddings returns the embedding vector for text. An empty model
// selects the service's embedding model.
func (s *Service) GenerateEmbeddings(ctx context.Context, text, model string) (Result[EmbeddingResult], error) {
	if text == "" {
		return Result[EmbeddingResult]{}, fmt.Errorf("%w: text is empty", ErrInvalidArgument)
	}
	if model == "" {
		model = s.embeddingModel
	}

	client, err := s.providers.Resolve(model)
	if err == nil {
		var resp *llm.EmbeddingResponse
		resp, err = client.Embed(ctx, llm.EmbeddingRequest{Model: model, Input: text})
		if err == nil {
			if resp.Model != "" {
				model = resp.Model
			}
			s.log.Debug().Str("model", model).Int("dimensions", len(resp.Embedding)).Msg("embedding generated")
			return Ok(EmbeddingResult{Embedding: resp.Embedding, Usage: resp.Usage, Model: model}), nil
		}
	}

	serr := Classify(err)
	s.log.Warn().Str("model", model).Str("kind", string(serr.Kind)).Str("details", serr.Details).Msg("embedding failed")
	return Fail[EmbeddingResult](serr), nil
}

// ValidateModelConfig checks the set fields of cfg against their allowed
// ranges and reports every violation.
func ValidateModelConfig(cfg domain.ModelConfig) Validation {
	errs := []string{}
	if t := cfg.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, "Temperature must be between 0 and 2")
	}
	if m := cfg.MaxTokens; m != nil && (*m < 1 || *m > 4000) {
		errs = append(errs, "Max tokens must be between 1 and 4000")
	}
	if p := cfg.TopP; p != nil && (*p < 0 || *p > 1) {
		errs = append(errs, "Top P must be between 0 and 1")
	}
	return Validation{IsValid: len(errs) == 0, Errors: errs}
}
