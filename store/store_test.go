package store

import (
	"context"
	"testing"
	"time"

	"github.com/localfirst/agentcore/cache"
	"github.com/localfirst/agentcore/core"
	"github.com/localfirst/agentcore/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTaskStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	s := NewTaskStore(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	task := &core.Task{
		ID:          "task_abc12345",
		Name:        "demo",
		Description: "a demo task",
		Priority:    core.PriorityHigh,
		Status:      core.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Steps: []core.Step{
			{ID: "s1", Description: "take a screenshot", Action: core.Action{Kind: core.ActionScreenshot}},
		},
		Context:    map[string]interface{}{"k": "v"},
		MaxRetries: 3,
	}
	require.NoError(t, s.SaveTask(ctx, task))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.Name, got.Name)
	assert.Equal(t, task.Priority, got.Priority)
	assert.Len(t, got.Steps, 1)
	assert.Equal(t, "v", got.Context["k"])

	got.Status = core.StatusCompleted
	got.Progress = 1.0
	completedAt := time.Now().UTC().Truncate(time.Millisecond)
	got.CompletedAt = &completedAt
	require.NoError(t, s.SaveTask(ctx, got))

	reloaded, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, reloaded.Status)
	require.NotNil(t, reloaded.CompletedAt)

	status := core.StatusCompleted
	list, err := s.ListTasks(ctx, scheduler.TaskFilter{Status: &status})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteTask(ctx, task.ID))
	gone, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCacheStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	s := NewCacheStore(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	tokens := 10
	cost := 0.0001
	entry := &cache.Entry{
		CacheKey:   "deadbeef",
		Provider:   "openai",
		Model:      "gpt-4o",
		PromptHash: "hash",
		Response:   "4",
		Tokens:     &tokens,
		Cost:       &cost,
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(time.Hour),
	}
	require.NoError(t, s.Upsert(ctx, entry))

	got, err := s.Get(ctx, "deadbeef")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "4", got.Response)

	require.NoError(t, s.RecordHit(ctx, "deadbeef", 10, 0.0001))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hits)

	n, err := s.DeleteExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHookStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	s := NewHookStore(db)
	ctx := context.Background()

	h := &core.Hook{
		Name: "logger", Priority: 5, Enabled: true,
		Events: []core.HookEventType{core.EventSessionStart},
		Command: "echo hi", Timeout: 2 * time.Second,
		Env: map[string]string{"FOO": "bar"},
	}
	require.NoError(t, s.SaveHook(ctx, h))

	list, err := s.ListHooks(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "logger", list[0].Name)
	assert.Equal(t, "bar", list[0].Env["FOO"])

	require.NoError(t, s.DeleteHook(ctx, "logger"))
	list, err = s.ListHooks(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 0)
}

func TestSettingsStoreEncryptsAtRest(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()
	s, err := NewSettingsStore(db, dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "api_key", "super-secret", true))

	var raw string
	require.NoError(t, db.GetContext(ctx, &raw, `SELECT value FROM settings WHERE key = ?`, "api_key"))
	assert.NotContains(t, raw, "super-secret")

	value, ok, err := s.Get(ctx, "api_key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "super-secret", value)
}
