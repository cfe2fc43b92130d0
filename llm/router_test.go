package llm

import (
	"context"
	"testing"
	"time"

	"github.com/localfirst/agentcore/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name       string
	configured bool
	vision     bool
	tools      bool
	calls      int
	response   Response
}

func (f *fakeProvider) Name() string                { return f.name }
func (f *fakeProvider) IsConfigured() bool           { return f.configured }
func (f *fakeProvider) SupportsVision() bool         { return f.vision }
func (f *fakeProvider) SupportsFunctionCalling() bool { return f.tools }
func (f *fakeProvider) Send(ctx context.Context, req Request) (Response, error) {
	f.calls++
	return f.response, nil
}
func (f *fakeProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Content: "x", Done: true}
	close(ch)
	return ch, nil
}

// memCacheStore is a minimal in-memory cache.Store so this package's
// router tests don't need a real database; the production store is
// store.CacheStore (sqlx-backed).
type memCacheStore struct{ entries map[string]*cache.Entry }

func newMemCacheStore() *memCacheStore { return &memCacheStore{entries: map[string]*cache.Entry{}} }

func (m *memCacheStore) Get(_ context.Context, key string) (*cache.Entry, error) {
	if e, ok := m.entries[key]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}
func (m *memCacheStore) Upsert(_ context.Context, e *cache.Entry) error {
	cp := *e
	m.entries[e.CacheKey] = &cp
	return nil
}
func (m *memCacheStore) Touch(_ context.Context, key string, t time.Time) error {
	if e, ok := m.entries[key]; ok {
		e.LastUsedAt = t
	}
	return nil
}
func (m *memCacheStore) RecordHit(_ context.Context, key string, tokens int, cost float64) error {
	if e, ok := m.entries[key]; ok {
		e.HitCount++
		e.TokensSaved += int64(tokens)
		e.CostSaved += cost
	}
	return nil
}
func (m *memCacheStore) Delete(_ context.Context, key string) error {
	delete(m.entries, key)
	return nil
}
func (m *memCacheStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	n := 0
	for k, e := range m.entries {
		if !e.ExpiresAt.After(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}
func (m *memCacheStore) EnforceCapacity(_ context.Context, max int) (int, error) { return 0, nil }
func (m *memCacheStore) Stats(context.Context) (cache.OverallStats, error)       { return cache.OverallStats{}, nil }
func (m *memCacheStore) StatsByProviderModel(context.Context) ([]cache.ProviderModelStats, error) {
	return nil, nil
}
func (m *memCacheStore) ClearAll(context.Context) error                  { m.entries = map[string]*cache.Entry{}; return nil }
func (m *memCacheStore) ClearProvider(_ context.Context, provider string) error { return nil }
func (m *memCacheStore) ClearModel(_ context.Context, model string) error      { return nil }

func newTestCache() *cache.Cache {
	return cache.New(newMemCacheStore(), 100)
}

func TestRouterCandidatesFiltersUnconfigured(t *testing.T) {
	r := New(newTestCache())
	r.RegisterProvider(&fakeProvider{name: "openai", configured: false})
	cands := r.Candidates(Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}}, Preferences{})
	assert.Empty(t, cands)
}

func TestRouterInvokeCandidateCachesOnSecondCall(t *testing.T) {
	r := New(newTestCache())
	p := &fakeProvider{name: "openai", configured: true, response: Response{Content: "4", Tokens: 10, PromptTokens: 5, CompletionTokens: 5}}
	r.RegisterProvider(p)

	temp := 0.0
	req := Request{Messages: []Message{{Role: RoleUser, Content: "2+2"}}, Temperature: &temp}
	cand := Candidate{Provider: "openai", Model: "gpt-4o"}

	out1, err := r.InvokeCandidate(context.Background(), cand, req)
	require.NoError(t, err)
	assert.False(t, out1.UsedCache)
	assert.Equal(t, "4", out1.Response.Content)

	out2, err := r.InvokeCandidate(context.Background(), cand, req)
	require.NoError(t, err)
	assert.True(t, out2.UsedCache)
	assert.Equal(t, "4", out2.Response.Content)

	assert.Equal(t, 1, p.calls)
}

func TestRouterCandidatesRespectsExplicitPin(t *testing.T) {
	r := New(newTestCache())
	r.RegisterProvider(&fakeProvider{name: "openai", configured: true})
	cands := r.Candidates(Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}}, Preferences{Model: "gpt-4o-mini"})
	require.Len(t, cands, 1)
	assert.Equal(t, "gpt-4o-mini", cands[0].Model)
}
