package cache

import (
	"context"
	"time"
)

// Entry is a row in the cache_entries table.
type Entry struct {
	CacheKey    string
	Provider    string
	Model       string
	PromptHash  string
	Response    string
	Tokens      *int
	Cost        *float64
	Temperature *float64
	MaxTokens   *int
	CreatedAt   time.Time
	LastUsedAt  time.Time
	ExpiresAt   time.Time
	HitCount    int64
	TokensSaved int64
	CostSaved   float64
}

// Store is the persistence-layer contract this package drives. The
// concrete implementation lives in package store (sqlx-backed), kept
// separate so cache.Cache never imports database/sql directly.
type Store interface {
	Get(ctx context.Context, cacheKey string) (*Entry, error) // nil, nil on miss
	Upsert(ctx context.Context, e *Entry) error
	Touch(ctx context.Context, cacheKey string, lastUsedAt time.Time) error
	RecordHit(ctx context.Context, cacheKey string, tokens int, cost float64) error
	Delete(ctx context.Context, cacheKey string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	EnforceCapacity(ctx context.Context, maxEntries int) (int, error)
	Stats(ctx context.Context) (OverallStats, error)
	StatsByProviderModel(ctx context.Context) ([]ProviderModelStats, error)
	ClearAll(ctx context.Context) error
	ClearProvider(ctx context.Context, provider string) error
	ClearModel(ctx context.Context, model string) error
}

// OverallStats aggregates across all cache entries.
type OverallStats struct {
	Entries       int64
	Hits          int64
	TokensSaved   int64
	CostSaved     float64
	AvgHitsPerRow float64
}

// ProviderModelStats aggregates per (provider, model) pair.
type ProviderModelStats struct {
	Provider    string
	Model       string
	Entries     int64
	Hits        int64
	TokensSaved int64
	CostSaved   float64
}

// Cache is the Response Cache component. It owns fingerprinting, TTL,
// and maintenance policy; row storage is delegated to Store.
type Cache struct {
	store      Store
	maxEntries int
}

// New constructs a Cache backed by store, capped at maxEntries rows.
func New(store Store, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &Cache{store: store, maxEntries: maxEntries}
}

// Lookup returns the cached response for in, or (nil, false) on a miss
// (including an expired row, which is deleted as a side effect).
// LastUsedAt is bumped on every hit.
func (c *Cache) Lookup(ctx context.Context, in FingerprintInput) (*Entry, bool, error) {
	key := CacheKey(in)
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}
	now := time.Now()
	if !entry.ExpiresAt.After(now) {
		_ = c.store.Delete(ctx, key)
		return nil, false, nil
	}
	if err := c.store.Touch(ctx, key, now); err != nil {
		return nil, false, err
	}
	entry.LastUsedAt = now
	return entry, true, nil
}

// RecordHit bumps hit_count/tokens_saved/cost_saved for a cache hit.
// Kept separate from Lookup so the router can record the actual tokens
// the provider would have billed.
func (c *Cache) RecordHit(ctx context.Context, cacheKey string, tokens int, cost float64) error {
	return c.store.RecordHit(ctx, cacheKey, tokens, cost)
}

// Insert upserts a response and runs the two-pass maintenance sequence:
// prune expired rows, then enforce capacity by evicting the oldest
// last_used_at rows until within bound.
func (c *Cache) Insert(ctx context.Context, in FingerprintInput, response string, tokens *int, cost *float64) (*Entry, error) {
	now := time.Now()
	ttl := TTLFor(in.Temperature)

	entry := &Entry{
		CacheKey:    CacheKey(in),
		Provider:    in.Provider,
		Model:       in.Model,
		PromptHash:  PromptHash(in.Messages),
		Response:    response,
		Tokens:      tokens,
		Cost:        cost,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
		CreatedAt:   now,
		LastUsedAt:  now,
		ExpiresAt:   now.Add(ttl),
	}

	if err := c.store.Upsert(ctx, entry); err != nil {
		return nil, err
	}

	if _, err := c.store.DeleteExpired(ctx, now); err != nil {
		return nil, err
	}
	if _, err := c.store.EnforceCapacity(ctx, c.maxEntries); err != nil {
		return nil, err
	}

	return entry, nil
}

// Stats returns overall cache statistics.
func (c *Cache) Stats(ctx context.Context) (OverallStats, error) {
	return c.store.Stats(ctx)
}

// StatsByProviderModel returns per-(provider,model) aggregates.
func (c *Cache) StatsByProviderModel(ctx context.Context) ([]ProviderModelStats, error) {
	return c.store.StatsByProviderModel(ctx)
}

// ClearAll removes every cache row.
func (c *Cache) ClearAll(ctx context.Context) error { return c.store.ClearAll(ctx) }

// ClearProvider removes every row for a given provider.
func (c *Cache) ClearProvider(ctx context.Context, provider string) error {
	return c.store.ClearProvider(ctx, provider)
}

// ClearModel removes every row for a given model.
func (c *Cache) ClearModel(ctx context.Context, model string) error {
	return c.store.ClearModel(ctx, model)
}
