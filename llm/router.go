package llm

import (
	"context"
	"sort"

	"github.com/localfirst/agentcore/cache"
	"github.com/localfirst/agentcore/core"
)

// Router selects a provider-model candidate and invokes it, with
// cache read-through and write-back.
type Router struct {
	providers map[string]Provider
	cache     *cache.Cache
	logger    core.Logger
	telemetry core.Telemetry
}

// Option configures a Router.
type Option func(*Router)

// WithLogger attaches a logger for router-level events.
func WithLogger(l core.Logger) Option { return func(r *Router) { r.logger = l } }

// WithTelemetry attaches a telemetry provider for span emission.
func WithTelemetry(t core.Telemetry) Option { return func(r *Router) { r.telemetry = t } }

// New constructs a Router backed by the given Response Cache.
func New(c *cache.Cache, opts ...Option) *Router {
	r := &Router{
		providers: make(map[string]Provider),
		cache:     c,
		logger:    core.NoOpLogger{},
		telemetry: core.NoOpTelemetry{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterProvider makes a provider adapter available to candidate
// selection, keyed by its own Name().
func (r *Router) RegisterProvider(p Provider) {
	r.providers[p.Name()] = p
}

// Candidates ranks (provider, model) pairs for a request given
// preferences: capability match first, then configured-and-ready
// providers, then strategy ordering.
func (r *Router) Candidates(req Request, prefs Preferences) []Candidate {
	var pool []ModelInfo
	for _, m := range ModelCatalog() {
		p, ok := r.providers[m.Provider]
		if !ok || !p.IsConfigured() {
			continue
		}
		if req.RequiresVision() && !m.SupportsVision {
			continue
		}
		if req.RequiresTools() && !m.SupportsTools {
			continue
		}
		if prefs.Provider != "" && prefs.Provider != m.Provider {
			continue
		}
		if prefs.Model != "" && prefs.Model != m.Model {
			continue
		}
		pool = append(pool, m)
	}

	switch prefs.Strategy {
	case StrategyCheapest:
		sort.SliceStable(pool, func(i, j int) bool {
			return pool[i].InputCostPerM+pool[i].OutputCostPerM < pool[j].InputCostPerM+pool[j].OutputCostPerM
		})
	case StrategyMostCapable:
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].Tier > pool[j].Tier })
	case StrategyFastest:
		// No latency table is in scope; candidates keep catalog order,
		// which is not sorted by speed.
	default: // StrategyAuto or unset
		// Catalog order already favors a sane default per provider.
	}

	out := make([]Candidate, 0, len(pool))
	for _, m := range pool {
		out = append(out, Candidate{Provider: m.Provider, Model: m.Model})
	}
	return out
}

// InvokeCandidate computes the cache key, checks the cache, and on a
// miss dispatches to the provider, computes cost, and writes the
// response back with a temperature-aware TTL.
func (r *Router) InvokeCandidate(ctx context.Context, cand Candidate, req Request) (Outcome, error) {
	ctx, span := r.telemetry.StartSpan(ctx, "llm.invoke_candidate")
	defer span.End()
	span.SetAttribute("provider", cand.Provider)
	span.SetAttribute("model", cand.Model)

	fp := fingerprintOf(cand, req)

	if entry, hit, err := r.cache.Lookup(ctx, fp); err != nil {
		return Outcome{}, err
	} else if hit {
		tokens := 0
		if entry.Tokens != nil {
			tokens = *entry.Tokens
		}
		cost := 0.0
		if entry.Cost != nil {
			cost = *entry.Cost
		}
		// Fire-and-forget stats update; a hit never blocks on it.
		go func() {
			_ = r.cache.RecordHit(context.Background(), entry.CacheKey, tokens, cost)
		}()
		return Outcome{
			Response: Response{
				Content: entry.Response,
				Tokens:  tokens,
				Cost:    cost,
				Model:   entry.Model,
			},
			UsedCache: true,
		}, nil
	}

	provider, ok := r.providers[cand.Provider]
	if !ok {
		return Outcome{}, &core.LLMError{Kind: core.LLMModelNotAvail, Message: "no provider registered: " + cand.Provider}
	}

	reqForProvider := req
	reqForProvider.Model = cand.Model

	resp, err := provider.Send(ctx, reqForProvider)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}

	resp.Cost = ComputeCost(cand.Provider, cand.Model, resp.PromptTokens, resp.CompletionTokens)
	resp.Model = cand.Model

	tokens := resp.Tokens
	cost := resp.Cost
	if _, err := r.cache.Insert(ctx, fp, resp.Content, &tokens, &cost); err != nil {
		r.logger.Warn("cache insert failed", map[string]interface{}{"error": err.Error()})
	}

	return Outcome{Response: resp}, nil
}

// Invoke is a convenience wrapper that tries candidates in order,
// returning on the first that succeeds. There is no failover inside a
// single InvokeCandidate call; this loop is the caller's explicit
// iteration over the ranking, not a hidden retry.
func (r *Router) Invoke(ctx context.Context, req Request, prefs Preferences) (Outcome, error) {
	candidates := r.Candidates(req, prefs)
	if len(candidates) == 0 {
		return Outcome{}, &core.ConfigurationError{Message: "no configured provider satisfies request"}
	}

	var lastErr error
	for _, cand := range candidates {
		outcome, err := r.InvokeCandidate(ctx, cand, req)
		if err == nil {
			return outcome, nil
		}
		lastErr = err
	}
	return Outcome{}, lastErr
}

func fingerprintOf(cand Candidate, req Request) cache.FingerprintInput {
	msgs := make([]cache.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = ToCacheMessage(m)
	}
	return cache.FingerprintInput{
		Provider:    cand.Provider,
		Model:       cand.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    msgs,
	}
}

// Stream dispatches a streaming request directly to the provider.
// Streams bypass the cache; only non-streaming responses are cached.
func (r *Router) Stream(ctx context.Context, cand Candidate, req Request) (<-chan StreamChunk, error) {
	provider, ok := r.providers[cand.Provider]
	if !ok {
		return nil, &core.LLMError{Kind: core.LLMModelNotAvail, Message: "no provider registered: " + cand.Provider}
	}
	reqForProvider := req
	reqForProvider.Model = cand.Model
	reqForProvider.Stream = true
	return provider.Stream(ctx, reqForProvider)
}
