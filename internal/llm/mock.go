package llm

import "context"

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	EmbedFunc    func(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error)
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{
		Content:      "mock response",
		FinishReason: "stop",
		Model:        req.Model,
		Usage:        &Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (m *MockClient) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, req)
	}
	return &EmbeddingResponse{
		Embedding: []float32{0.1, 0.2, 0.3},
		Model:     req.Model,
		Usage:     &Usage{PromptTokens: 3, TotalTokens: 3},
	}, nil
}
