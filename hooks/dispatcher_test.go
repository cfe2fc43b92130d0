package hooks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/localfirst/agentcore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memHookStore struct {
	mu    sync.Mutex
	hooks map[string]*core.Hook
}

func newMemHookStore() *memHookStore { return &memHookStore{hooks: map[string]*core.Hook{}} }

func (m *memHookStore) SaveHook(_ context.Context, h *core.Hook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	m.hooks[h.Name] = &cp
	return nil
}

func (m *memHookStore) DeleteHook(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hooks, name)
	return nil
}

func (m *memHookStore) ListHooks(_ context.Context) ([]*core.Hook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.Hook, 0, len(m.hooks))
	for _, h := range m.hooks {
		cp := *h
		out = append(out, &cp)
	}
	return out, nil
}

func TestHookOrdering(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, newMemHookStore(), nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string

	h1 := &core.Hook{Name: "h1", Priority: 10, Enabled: true, Events: []core.HookEventType{core.EventSessionStart}, Command: "echo h1", Timeout: time.Second}
	h2 := &core.Hook{Name: "h2", Priority: 20, Enabled: true, Events: []core.HookEventType{core.EventSessionStart}, Command: "echo h2", Timeout: time.Second}
	require.NoError(t, d.AddHook(ctx, h2))
	require.NoError(t, d.AddHook(ctx, h1))

	results, err := d.ExecuteHooks(ctx, core.HookEvent{EventType: core.EventSessionStart, SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	mu.Lock()
	for _, r := range results {
		order = append(order, r.HookName)
	}
	mu.Unlock()
	assert.Equal(t, []string{"h1", "h2"}, order)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
}

func TestHookTimeout(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, newMemHookStore(), nil)
	require.NoError(t, err)

	h := &core.Hook{
		Name: "slow", Priority: 1, Enabled: true,
		Events: []core.HookEventType{core.EventSessionStart}, Command: "sleep 2",
		Timeout: 50 * time.Millisecond,
	}
	require.NoError(t, d.AddHook(ctx, h))

	results, _ := d.ExecuteHooks(ctx, core.HookEvent{EventType: core.EventSessionStart, SessionID: "s1"})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.NotEmpty(t, results[0].Error)
	assert.GreaterOrEqual(t, results[0].ExecutionTimeMs, int64(50))
}

func TestHookDuplicateName(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, newMemHookStore(), nil)
	require.NoError(t, err)

	h := &core.Hook{Name: "dup", Priority: 1, Enabled: true, Events: []core.HookEventType{core.EventSessionStart}, Command: "true"}
	require.NoError(t, d.AddHook(ctx, h))
	err = d.AddHook(ctx, h)
	assert.ErrorIs(t, err, core.ErrDuplicateHookName)
}

func TestHookFailureSurfacesWhenContinueOnErrorFalse(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, newMemHookStore(), nil)
	require.NoError(t, err)

	bad := &core.Hook{
		Name: "bad", Priority: 1, Enabled: true,
		Events: []core.HookEventType{core.EventSessionStart}, Command: "exit 3",
		Timeout: time.Second, ContinueOnError: false,
	}
	after := &core.Hook{
		Name: "after", Priority: 2, Enabled: true,
		Events: []core.HookEventType{core.EventSessionStart}, Command: "echo ok",
		Timeout: time.Second, ContinueOnError: true,
	}
	require.NoError(t, d.AddHook(ctx, bad))
	require.NoError(t, d.AddHook(ctx, after))

	results, err := d.ExecuteHooks(ctx, core.HookEvent{EventType: core.EventSessionStart, SessionID: "s1"})
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	require.NotNil(t, results[0].ExitCode)
	assert.Equal(t, 3, *results[0].ExitCode)
	afterStats, ok := d.Stats("after")
	require.True(t, ok)
	assert.Equal(t, uint64(0), afterStats.TotalExecutions)
}

func TestHookStatsAccumulate(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, newMemHookStore(), nil)
	require.NoError(t, err)

	h := &core.Hook{
		Name: "counted", Priority: 1, Enabled: true,
		Events: []core.HookEventType{core.EventSessionStart}, Command: "true",
		Timeout: time.Second,
	}
	require.NoError(t, d.AddHook(ctx, h))

	for i := 0; i < 3; i++ {
		_, err := d.ExecuteHooks(ctx, core.HookEvent{EventType: core.EventSessionStart, SessionID: "s1"})
		require.NoError(t, err)
	}

	stats, ok := d.Stats("counted")
	require.True(t, ok)
	assert.Equal(t, uint64(3), stats.TotalExecutions)
	assert.Equal(t, uint64(3), stats.SuccessfulExecutions)
	assert.Equal(t, uint64(0), stats.FailedExecutions)
	assert.NotNil(t, stats.LastExecution)
}

func TestHookEnvironmentVisibleToChild(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, newMemHookStore(), nil)
	require.NoError(t, err)

	h := &core.Hook{
		Name: "logger", Priority: 1, Enabled: true,
		Events: []core.HookEventType{core.EventSessionStart}, Command: "echo $HOOK_EVENT_TYPE",
		Timeout: time.Second,
	}
	require.NoError(t, d.AddHook(ctx, h))

	results, err := d.ExecuteHooks(ctx, core.HookEvent{EventType: core.EventSessionStart, SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Contains(t, results[0].Stdout, string(core.EventSessionStart))
}
