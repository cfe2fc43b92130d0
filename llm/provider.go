package llm

import "context"

// Provider is the external LLM provider adapter contract. The router
// never implements per-provider wire formats beyond the streaming
// contract; concrete adapters (OpenAI, Anthropic, Google, Ollama) live
// outside this module.
type Provider interface {
	Name() string
	IsConfigured() bool
	SupportsVision() bool
	SupportsFunctionCalling() bool

	Send(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)
}

// ModelTier ranks a model's general capability, used by the
// MostCapable strategy.
type ModelTier int

const (
	TierBasic ModelTier = iota
	TierStandard
	TierAdvanced
	TierFlagship
)

// ModelInfo carries the static facts the router's candidate selection
// needs about a (provider, model) pair.
type ModelInfo struct {
	Provider       string
	Model          string
	Tier           ModelTier
	SupportsVision bool
	SupportsTools  bool
	InputCostPerM  float64 // USD per 1M input tokens
	OutputCostPerM float64 // USD per 1M output tokens
}
