package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/soyeahso/taskweaver/internal/logging"
	"github.com/soyeahso/taskweaver/internal/version"
)

// OpenAIOptions configures an OpenAIClient. The same client serves any
// OpenAI-compatible endpoint (for example a local Ollama server).
type OpenAIOptions struct {
	Name         string // provider name, "openai" when empty
	APIKey       string
	BaseURL      string
	Organization string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// OpenAIClient talks to the chat completion and embedding endpoints.
type OpenAIClient struct {
	name string
	api  *openai.Client
	log  *logging.Logger
}

// NewOpenAIClient builds a client. The underlying HTTP client is created
// once and reused for every request.
func NewOpenAIClient(opts OpenAIOptions, log *logging.Logger) *OpenAIClient {
	name := opts.Name
	if name == "" {
		name = "openai"
	}
	sub := log.Sub("llm." + name)

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	if opts.Organization != "" {
		cfg.OrgID = opts.Organization
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *hc
	wrapped.Transport = &loggingTransport{base: base, log: sub}
	cfg.HTTPClient = &wrapped

	sub.Debug().
		Str("base_url", cfg.BaseURL).
		Str("api_key", logging.MaskSecret(opts.APIKey)).
		Msg("provider client configured")

	return &OpenAIClient{
		name: name,
		api:  openai.NewClientWithConfig(cfg),
		log:  sub,
	}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string { return c.name }

// Complete sends a chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	creq := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  msgs,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		creq.Temperature = keepZero(*req.Temperature)
	}
	if req.TopP != nil {
		creq.TopP = keepZero(*req.TopP)
	}
	if req.FrequencyPenalty != nil {
		creq.FrequencyPenalty = float32(*req.FrequencyPenalty)
	}
	if req.PresencePenalty != nil {
		creq.PresencePenalty = float32(*req.PresencePenalty)
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, c.wrapError(err)
	}

	out := &CompletionResponse{
		Model:    resp.Model,
		Usage:    convertUsage(resp.Usage),
		Duration: time.Since(start),
	}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
		out.FinishReason = string(resp.Choices[0].FinishReason)
	}
	return out, nil
}

// Embed requests the embedding of a single input text.
func (c *OpenAIClient) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{req.Input},
		Model: openai.EmbeddingModel(req.Model),
	})
	if err != nil {
		return nil, c.wrapError(err)
	}
	if len(resp.Data) == 0 {
		return nil, &ProviderError{Provider: c.name, Message: "embedding response contained no data"}
	}

	return &EmbeddingResponse{
		Embedding: resp.Data[0].Embedding,
		Usage:     convertUsage(resp.Usage),
		Model:     string(resp.Model),
	}, nil
}

// wrapError converts go-openai errors into *ProviderError. Transport and
// context errors pass through unchanged.
func (c *OpenAIClient) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider: c.name,
			Status:   apiErr.HTTPStatusCode,
			Code:     errorCode(apiErr.Code),
			Type:     apiErr.Type,
			Message:  apiErr.Message,
			Err:      err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.HTTPStatus
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &ProviderError{
			Provider: c.name,
			Status:   reqErr.HTTPStatusCode,
			Message:  msg,
			Err:      err,
		}
	}
	return err
}

// errorCode normalizes the API's error code, which may be a string or a number.
func errorCode(code any) string {
	switch v := code.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func convertUsage(u openai.Usage) *Usage {
	if u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0 {
		return nil
	}
	return &Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// keepZero maps 0 to the smallest float32 so go-openai's omitempty does not
// drop an explicit zero.
func keepZero(v float64) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(v)
}

// loggingTransport logs each provider round trip at debug level and sets
// the user agent.
type loggingTransport struct {
	base http.RoundTripper
	log  *logging.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	ev := t.log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Dur("duration", time.Since(start))
	if err != nil {
		ev.Err(err).Msg("provider request failed")
		return nil, err
	}
	ev.Int("status", resp.StatusCode).Msg("provider request")
	return resp, nil
}
