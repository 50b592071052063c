package llm

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/taskweaver/internal/config"
	"github.com/soyeahso/taskweaver/internal/logging"
)

// Registry manages provider clients and resolves model identifiers to clients.
// Clients are constructed once at process start and shared by all callers.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // model → provider name
	fallback string            // default provider name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered LLM provider")
}

// Alias routes a model identifier to a provider.
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the provider used when no model/provider match is found.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Client for the given model reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[model]; ok {
		return c, nil
	}
	if provider, ok := r.aliases[model]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}
	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no LLM provider for model %q", model)
}

// List returns all registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// NewRegistryFromConfig registers the OpenAI provider as the fallback and,
// when configured, an OpenAI-compatible Ollama provider for its listed models.
func NewRegistryFromConfig(cfg *config.Config, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	reg.Register("openai", NewOpenAIClient(OpenAIOptions{
		APIKey:       cfg.OpenAI.APIKey,
		BaseURL:      cfg.OpenAI.BaseURL,
		Organization: cfg.OpenAI.Organization,
		Timeout:      time.Duration(cfg.OpenAI.TimeoutSec) * time.Second,
	}, log))
	reg.SetFallback("openai")

	if cfg.Ollama != nil && cfg.Ollama.BaseURL != "" {
		reg.Register("ollama", NewOpenAIClient(OpenAIOptions{
			Name:    "ollama",
			APIKey:  "ollama",
			BaseURL: cfg.Ollama.BaseURL,
			Timeout: time.Duration(cfg.OpenAI.TimeoutSec) * time.Second,
		}, log))
		for _, m := range cfg.Ollama.Models {
			reg.Alias(m, "ollama")
		}
	}

	return reg
}
