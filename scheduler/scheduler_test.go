package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/localfirst/agentcore/approval"
	"github.com/localfirst/agentcore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*core.Task
}

func newMemTaskStore() *memTaskStore { return &memTaskStore{tasks: map[string]*core.Task{}} }

func (m *memTaskStore) SaveTask(_ context.Context, t *core.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memTaskStore) GetTask(_ context.Context, id string) (*core.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memTaskStore) ListTasks(_ context.Context, _ TaskFilter) ([]*core.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memTaskStore) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

type fixedPlanner struct{ steps []core.Step }

func (p fixedPlanner) Plan(context.Context, string) []core.Step { return p.steps }

type autoApprover struct{}

func (autoApprover) RequestApproval(context.Context, approval.Request) (approval.Outcome, error) {
	return approval.Outcome{Decision: approval.Decision{Kind: approval.DecisionApproved, Trust: false}}, nil
}

type noopHooks struct{}

func (noopHooks) ExecuteHooks(context.Context, core.HookEvent) ([]core.HookExecutionResult, error) {
	return nil, nil
}

type alwaysOKGuard struct{}

func (alwaysOKGuard) Check(context.Context) (bool, error) { return true, nil }

// sleepExecutor sleeps 100ms per step to simulate work and lets
// tests observe concurrency.
type sleepExecutor struct {
	mu      sync.Mutex
	peak    int
	current int
}

func (e *sleepExecutor) ExecuteStep(ctx context.Context, step core.Step, _ map[string]interface{}) (core.StepResult, error) {
	e.mu.Lock()
	e.current++
	if e.current > e.peak {
		e.peak = e.current
	}
	e.mu.Unlock()

	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
	}

	e.mu.Lock()
	e.current--
	e.mu.Unlock()
	return core.StepResult{Success: true}, nil
}

func oneStepPlan() []core.Step {
	return []core.Step{{ID: "s1", Description: "noop", Action: core.Action{Kind: core.ActionScreenshot}}}
}

func newTestScheduler(t *testing.T, maxConcurrent int, executor core.Executor, opts ...Option) *Scheduler {
	t.Helper()
	cfg := core.AgentConfig{MaxConcurrentTasks: maxConcurrent, MaxRetries: 3}
	store := newMemTaskStore()
	planner := fixedPlanner{steps: oneStepPlan()}
	return New(cfg, store, planner, autoApprover{}, executor, noopHooks{}, alwaysOKGuard{}, opts...)
}

func TestSchedulerPriorityOrdering(t *testing.T) {
	var order []string
	var mu sync.Mutex
	sink := &recordingSink{onEvent: func(name string, task *core.Task) {
		if name == "task:completed" {
			mu.Lock()
			order = append(order, task.Name)
			mu.Unlock()
		}
	}}

	exec := &sleepExecutor{}
	s := newTestScheduler(t, 1, exec, WithEventSink(sink))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	// Submit in reverse-priority order.
	_, err := s.Submit(ctx, "low", "d", core.PriorityLow, true)
	require.NoError(t, err)
	_, err = s.Submit(ctx, "normal", "d", core.PriorityNormal, true)
	require.NoError(t, err)
	_, err = s.Submit(ctx, "high", "d", core.PriorityHigh, true)
	require.NoError(t, err)
	_, err = s.Submit(ctx, "critical", "d", core.PriorityCritical, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 4
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"critical", "high", "normal", "low"}, order)
}

func TestSchedulerConcurrencyCeiling(t *testing.T) {
	exec := &sleepExecutor{}
	s := newTestScheduler(t, 2, exec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	for i := 0; i < 5; i++ {
		_, err := s.Submit(ctx, "t", "d", core.PriorityNormal, true)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return exec.peak > 0
	}, time.Second, 5*time.Millisecond)

	time.Sleep(500 * time.Millisecond)

	exec.mu.Lock()
	peak := exec.peak
	exec.mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
}

func TestSchedulerCancelNotYetStarted(t *testing.T) {
	s := newTestScheduler(t, 0, &sleepExecutor{})
	ctx := context.Background()

	id, err := s.Submit(ctx, "t", "d", core.PriorityNormal, true)
	require.NoError(t, err)

	require.NoError(t, s.Cancel(ctx, id))

	task, err := s.store.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, task.Status)
	assert.NotNil(t, task.CompletedAt)
}

type recordingSink struct {
	onEvent func(name string, task *core.Task)
}

func (r *recordingSink) EmitTaskEvent(name string, task *core.Task) {
	if r.onEvent != nil {
		r.onEvent(name, task)
	}
}
func (r *recordingSink) EmitStatusUpdate(bool, string) {}

// flakyExecutor fails the first failuresBeforeSuccess calls with a
// transient error, then succeeds.
type flakyExecutor struct {
	mu                    sync.Mutex
	calls                 int
	failuresBeforeSuccess int
}

func (e *flakyExecutor) ExecuteStep(context.Context, core.Step, map[string]interface{}) (core.StepResult, error) {
	e.mu.Lock()
	e.calls++
	n := e.calls
	e.mu.Unlock()
	if n <= e.failuresBeforeSuccess {
		return core.StepResult{}, &core.TransientError{Message: "blip"}
	}
	return core.StepResult{Success: true}, nil
}

func TestSchedulerRetriesTransientThenCompletes(t *testing.T) {
	exec := &flakyExecutor{failuresBeforeSuccess: 2}
	cfg := core.AgentConfig{MaxConcurrentTasks: 1, MaxRetries: 3}
	store := newMemTaskStore()
	// read_file routes to the filesystem retry preset (3 attempts,
	// fixed 100ms), so two transient failures still complete.
	planner := fixedPlanner{steps: []core.Step{{
		ID: "s1", Description: "read", Action: core.Action{Kind: core.ActionReadFile, Path: "/tmp/x"},
	}}}
	s := New(cfg, store, planner, autoApprover{}, exec, noopHooks{}, alwaysOKGuard{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	id, err := s.Submit(ctx, "retrying", "d", core.PriorityNormal, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, err := store.GetTask(ctx, id)
		return err == nil && task != nil && task.Status.IsTerminal()
	}, 3*time.Second, 10*time.Millisecond)

	task, err := store.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, task.Status)
	assert.Equal(t, 1.0, task.Progress)
	assert.Equal(t, 2, task.RetryCount)
}

type toggleGuard struct {
	mu sync.Mutex
	ok bool
}

func (g *toggleGuard) Check(context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ok, nil
}

func (g *toggleGuard) set(ok bool) {
	g.mu.Lock()
	g.ok = ok
	g.mu.Unlock()
}

func TestSchedulerResourceGuardThrottles(t *testing.T) {
	oldBackoff := guardBackoff
	guardBackoff = 50 * time.Millisecond
	defer func() { guardBackoff = oldBackoff }()

	guard := &toggleGuard{}
	exec := &sleepExecutor{}
	cfg := core.AgentConfig{MaxConcurrentTasks: 2, MaxRetries: 3}
	store := newMemTaskStore()
	s := New(cfg, store, fixedPlanner{steps: oneStepPlan()}, autoApprover{}, exec, noopHooks{}, guard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	id, err := s.Submit(ctx, "throttled", "d", core.PriorityNormal, true)
	require.NoError(t, err)

	time.Sleep(400 * time.Millisecond)
	task, err := store.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, task.Status)

	guard.set(true)
	require.Eventually(t, func() bool {
		task, err := store.GetTask(ctx, id)
		return err == nil && task != nil && task.Status == core.StatusCompleted
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSchedulerPauseResume(t *testing.T) {
	exec := &sleepExecutor{}
	cfg := core.AgentConfig{MaxConcurrentTasks: 1, MaxRetries: 3}
	store := newMemTaskStore()
	// Several steps so the pause flag is sampled at a step boundary
	// before the task can finish.
	steps := []core.Step{
		{ID: "s1", Description: "noop", Action: core.Action{Kind: core.ActionScreenshot}},
		{ID: "s2", Description: "noop", Action: core.Action{Kind: core.ActionScreenshot}},
		{ID: "s3", Description: "noop", Action: core.Action{Kind: core.ActionScreenshot}},
	}
	s := New(cfg, store, fixedPlanner{steps: steps}, autoApprover{}, exec, noopHooks{}, alwaysOKGuard{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	id, err := s.Submit(ctx, "pausable", "d", core.PriorityNormal, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, _ := s.store.GetTask(ctx, id)
		return task != nil && task.Status == core.StatusExecuting
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Pause(ctx, id))
	task, err := s.store.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaused, task.Status)

	require.NoError(t, s.Resume(ctx, id))
	require.Eventually(t, func() bool {
		task, _ := s.store.GetTask(ctx, id)
		return task != nil && task.Status == core.StatusCompleted
	}, 3*time.Second, 10*time.Millisecond)
}
