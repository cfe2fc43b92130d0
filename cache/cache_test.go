package cache

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a minimal in-memory Store used only by this package's
// tests; the real implementation is store.CacheStore (sqlx-backed).
type memStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func newMemStore() *memStore { return &memStore{entries: map[string]*Entry{}} }

func (m *memStore) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) Upsert(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries[e.CacheKey] = &cp
	return nil
}

func (m *memStore) Touch(_ context.Context, key string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.LastUsedAt = t
	}
	return nil
}

func (m *memStore) RecordHit(_ context.Context, key string, tokens int, cost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.HitCount++
		e.TokensSaved += int64(tokens)
		e.CostSaved += cost
	}
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if !e.ExpiresAt.After(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) EnforceCapacity(_ context.Context, max int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) <= max {
		return 0, nil
	}
	type kv struct {
		key string
		lu  time.Time
	}
	all := make([]kv, 0, len(m.entries))
	for k, e := range m.entries {
		all = append(all, kv{k, e.LastUsedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].lu.Before(all[j].lu) })
	evict := len(all) - max
	for i := 0; i < evict; i++ {
		delete(m.entries, all[i].key)
	}
	return evict, nil
}

func (m *memStore) Stats(context.Context) (OverallStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s OverallStats
	s.Entries = int64(len(m.entries))
	for _, e := range m.entries {
		s.Hits += e.HitCount
		s.TokensSaved += e.TokensSaved
		s.CostSaved += e.CostSaved
	}
	if s.Entries > 0 {
		s.AvgHitsPerRow = float64(s.Hits) / float64(s.Entries)
	}
	return s, nil
}

func (m *memStore) StatsByProviderModel(context.Context) ([]ProviderModelStats, error) {
	return nil, nil
}
func (m *memStore) ClearAll(context.Context) error { m.entries = map[string]*Entry{}; return nil }
func (m *memStore) ClearProvider(_ context.Context, provider string) error {
	for k, e := range m.entries {
		if e.Provider == provider {
			delete(m.entries, k)
		}
	}
	return nil
}
func (m *memStore) ClearModel(_ context.Context, model string) error {
	for k, e := range m.entries {
		if e.Model == model {
			delete(m.entries, k)
		}
	}
	return nil
}

func float64p(v float64) *float64 { return &v }
func intp(v int) *int             { return &v }

func TestCacheKeyStability(t *testing.T) {
	in := FingerprintInput{
		Provider: "openai", Model: "gpt-4o", Temperature: float64p(0),
		Messages: []Message{{Role: "user", Content: "2+2"}},
	}
	assert.Equal(t, CacheKey(in), CacheKey(in))

	permuted := FingerprintInput{
		Provider: "openai", Model: "gpt-4o", Temperature: float64p(0),
		Messages: []Message{{Role: "user", Content: "2+2"}, {Role: "user", Content: "3+3"}},
	}
	reordered := FingerprintInput{
		Provider: "openai", Model: "gpt-4o", Temperature: float64p(0),
		Messages: []Message{{Role: "user", Content: "3+3"}, {Role: "user", Content: "2+2"}},
	}
	assert.NotEqual(t, CacheKey(permuted), CacheKey(reordered))
}

func TestCacheKeyOmitsUnsetOptionalParams(t *testing.T) {
	withMaxTokens := FingerprintInput{Provider: "p", Model: "m", MaxTokens: intp(100), Messages: []Message{{Role: "user", Content: "hi"}}}
	without := FingerprintInput{Provider: "p", Model: "m", Messages: []Message{{Role: "user", Content: "hi"}}}
	assert.NotEqual(t, CacheKey(withMaxTokens), CacheKey(without))
}

func TestTTLForTemperature(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, TTLFor(float64p(0)))
	assert.Equal(t, time.Hour, TTLFor(float64p(0.7)))
	assert.Equal(t, time.Hour, TTLFor(nil))
}

func TestCacheHitAccounting(t *testing.T) {
	c := New(newMemStore(), 100)
	ctx := context.Background()
	in := FingerprintInput{Provider: "p", Model: "m", Temperature: float64p(0), Messages: []Message{{Role: "user", Content: "2+2"}}}

	entry, err := c.Insert(ctx, in, "4", intp(10), float64p(0.0001))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, hit, err := c.Lookup(ctx, in)
		require.NoError(t, err)
		require.True(t, hit)
		require.NoError(t, c.RecordHit(ctx, entry.CacheKey, 10, 0.0001))
	}

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Hits)
	assert.Equal(t, int64(30), stats.TokensSaved)
	assert.InDelta(t, 0.0003, stats.CostSaved, 1e-9)
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	c := New(newMemStore(), 2)
	ctx := context.Background()

	mkInput := func(content string) FingerprintInput {
		return FingerprintInput{Provider: "p", Model: "m", Messages: []Message{{Role: "user", Content: content}}}
	}

	_, err := c.Insert(ctx, mkInput("a"), "ra", nil, nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = c.Insert(ctx, mkInput("b"), "rb", nil, nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = c.Insert(ctx, mkInput("c"), "rc", nil, nil)
	require.NoError(t, err)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Entries)

	_, hit, _ := c.Lookup(ctx, mkInput("a"))
	assert.False(t, hit)
	_, hit, _ = c.Lookup(ctx, mkInput("c"))
	assert.True(t, hit)
}

func TestCacheExpiredEntryIsMiss(t *testing.T) {
	store := newMemStore()
	c := New(store, 100)
	ctx := context.Background()
	in := FingerprintInput{Provider: "p", Model: "m", Messages: []Message{{Role: "user", Content: "x"}}}

	entry, err := c.Insert(ctx, in, "r", nil, nil)
	require.NoError(t, err)

	store.mu.Lock()
	store.entries[entry.CacheKey].ExpiresAt = time.Now().Add(-time.Minute)
	store.mu.Unlock()

	_, hit, err := c.Lookup(ctx, in)
	require.NoError(t, err)
	assert.False(t, hit)
}
