package taskexec

import (
	"slices"

	"github.com/soyeahso/taskweaver/internal/domain"
)

// Model identifiers with built-in defaults or pricing.
const (
	ModelGPT4         = "gpt-4"
	ModelGPT4Turbo    = "gpt-4-turbo-preview"
	ModelGPT35Turbo   = "gpt-3.5-turbo"
	ModelGPT35Turbo16 = "gpt-3.5-turbo-16k"

	// FallbackModel supplies defaults and pricing for unknown models.
	FallbackModel = ModelGPT35Turbo

	// DefaultEmbeddingModel is used when GenerateEmbeddings gets no model.
	DefaultEmbeddingModel = "text-embedding-ada-002"
)

// GenerationConfig is a fully populated set of generation parameters.
type GenerationConfig struct {
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
}

// Pricing is the cost in hundredths of a currency unit per 1,000 tokens.
type Pricing struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

var defaultConfigs = map[string]GenerationConfig{
	ModelGPT4:       {Model: ModelGPT4, Temperature: 0.7, MaxTokens: 2000, TopP: 1},
	ModelGPT4Turbo:  {Model: ModelGPT4Turbo, Temperature: 0.7, MaxTokens: 4000, TopP: 1},
	ModelGPT35Turbo: {Model: ModelGPT35Turbo, Temperature: 0.7, MaxTokens: 1500, TopP: 1},
}

var pricing = map[string]Pricing{
	ModelGPT4:         {Input: 3, Output: 6},
	ModelGPT4Turbo:    {Input: 1, Output: 3},
	ModelGPT35Turbo:   {Input: 0.05, Output: 0.15},
	ModelGPT35Turbo16: {Input: 0.3, Output: 0.4},
}

var availableModels = []string{ModelGPT4, ModelGPT4Turbo, ModelGPT35Turbo, ModelGPT35Turbo16}

// AvailableModels lists the models offered for agent configuration.
func AvailableModels() []string {
	return slices.Clone(availableModels)
}

// DefaultModelConfig returns the default parameters for model, or the
// fallback model's defaults when model has no entry.
func DefaultModelConfig(model string) GenerationConfig {
	if cfg, ok := defaultConfigs[model]; ok {
		return cfg
	}
	return defaultConfigs[FallbackModel]
}

// ResolveModelConfig overlays the fields set in cfg on the defaults for the
// selected model. When cfg names no model, defaultModel is used. An unknown
// model keeps its identifier but takes the fallback model's parameters.
func ResolveModelConfig(cfg *domain.ModelConfig, defaultModel string) GenerationConfig {
	model := defaultModel
	if model == "" {
		model = FallbackModel
	}
	if cfg != nil && cfg.Model != "" {
		model = cfg.Model
	}

	out := DefaultModelConfig(model)
	out.Model = model
	if cfg == nil {
		return out
	}
	if cfg.Temperature != nil {
		out.Temperature = *cfg.Temperature
	}
	if cfg.MaxTokens != nil {
		out.MaxTokens = *cfg.MaxTokens
	}
	if cfg.TopP != nil {
		out.TopP = *cfg.TopP
	}
	if cfg.FrequencyPenalty != nil {
		out.FrequencyPenalty = *cfg.FrequencyPenalty
	}
	if cfg.PresencePenalty != nil {
		out.PresencePenalty = *cfg.PresencePenalty
	}
	return out
}

// PricingFor returns the price entry for model. Any identifier without an
// entry, dated snapshots included, is priced as the fallback model.
func PricingFor(model string) Pricing {
	if p, ok := pricing[model]; ok {
		return p
	}
	return pricing[FallbackModel]
}

// ModelInfo describes a model for listings.
type ModelInfo struct {
	ID       string           `json:"id"`
	Defaults GenerationConfig `json:"defaults"`
	Pricing  Pricing          `json:"pricing"`
}

// Catalog returns defaults and pricing for every available model.
func Catalog() []ModelInfo {
	out := make([]ModelInfo, 0, len(availableModels))
	for _, id := range availableModels {
		d := DefaultModelConfig(id)
		d.Model = id
		out = append(out, ModelInfo{ID: id, Defaults: d, Pricing: PricingFor(id)})
	}
	return out
}
