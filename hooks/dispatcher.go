// Package hooks implements the event-driven hook dispatcher:
// lifecycle-event fan-out to user-defined external commands with
// priority ordering, process isolation, per-hook timeouts, and
// execution statistics.
package hooks

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/localfirst/agentcore/core"
)

// Store is the persistence-layer contract for the `hooks` table. The
// concrete implementation lives in package store.
type Store interface {
	SaveHook(ctx context.Context, h *core.Hook) error
	DeleteHook(ctx context.Context, name string) error
	ListHooks(ctx context.Context) ([]*core.Hook, error)
}

// Dispatcher keeps the hook set sorted by priority and runs matching
// hooks for each lifecycle event.
type Dispatcher struct {
	store Store
	log   core.Logger
	onRun MetricSink

	mu    sync.RWMutex
	hooks []*core.Hook

	statsMu sync.Mutex
	stats   map[string]*core.HookStats
}

// MetricSink receives one (hook_execution_ms, elapsed, {"hook": name})
// sample per hook run; cmd/agentcore wires this to metrics.Registry.Record
// so hook timing shows up alongside the scheduler's and cache's metrics.
type MetricSink func(name string, value float64, labels map[string]string)

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithMetricSink attaches a MetricSink invoked after every hook run.
func WithMetricSink(sink MetricSink) Option {
	return func(d *Dispatcher) { d.onRun = sink }
}

// New constructs a Dispatcher backed by store, loading any
// previously-registered hooks.
func New(ctx context.Context, store Store, log core.Logger, opts ...Option) (*Dispatcher, error) {
	if log == nil {
		log = core.NoOpLogger{}
	}
	d := &Dispatcher{store: store, log: log, stats: make(map[string]*core.HookStats)}
	for _, opt := range opts {
		opt(d)
	}

	existing, err := store.ListHooks(ctx)
	if err != nil {
		return nil, err
	}
	d.hooks = existing
	d.sortLocked()
	for _, h := range d.hooks {
		d.stats[h.Name] = &core.HookStats{}
	}
	return d, nil
}

func (d *Dispatcher) sortLocked() {
	sort.SliceStable(d.hooks, func(i, j int) bool { return d.hooks[i].Priority < d.hooks[j].Priority })
}

// AddHook registers a new hook. Duplicate names are rejected.
func (d *Dispatcher) AddHook(ctx context.Context, h *core.Hook) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.hooks {
		if existing.Name == h.Name {
			return core.NewFrameworkError("hooks.AddHook", "hook", core.ErrDuplicateHookName).WithID(h.Name)
		}
	}
	if err := d.store.SaveHook(ctx, h); err != nil {
		return err
	}
	d.hooks = append(d.hooks, h)
	d.sortLocked()

	d.statsMu.Lock()
	d.stats[h.Name] = &core.HookStats{}
	d.statsMu.Unlock()
	return nil
}

// RemoveHook unregisters a hook by name.
func (d *Dispatcher) RemoveHook(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := -1
	for i, h := range d.hooks {
		if h.Name == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return core.NewFrameworkError("hooks.RemoveHook", "hook", core.ErrHookNotFound).WithID(name)
	}
	if err := d.store.DeleteHook(ctx, name); err != nil {
		return err
	}
	d.hooks = append(d.hooks[:idx], d.hooks[idx+1:]...)

	d.statsMu.Lock()
	delete(d.stats, name)
	d.statsMu.Unlock()
	return nil
}

// SetEnabled toggles a hook's enabled flag and persists the change.
func (d *Dispatcher) SetEnabled(ctx context.Context, name string, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, h := range d.hooks {
		if h.Name == name {
			h.Enabled = enabled
			return d.store.SaveHook(ctx, h)
		}
	}
	return core.NewFrameworkError("hooks.SetEnabled", "hook", core.ErrHookNotFound).WithID(name)
}

// ExecuteHooks runs every enabled hook subscribed to event.EventType,
// in priority order, and returns each hook's result. A hook with
// ContinueOnError=false that fails surfaces an event-level error and
// later hooks do not run; a failing hook with ContinueOnError=true
// lets later hooks run.
func (d *Dispatcher) ExecuteHooks(ctx context.Context, event core.HookEvent) ([]core.HookExecutionResult, error) {
	d.mu.RLock()
	matching := make([]*core.Hook, 0, len(d.hooks))
	for _, h := range d.hooks {
		if h.HandlesEvent(event.EventType) {
			matching = append(matching, h)
		}
	}
	d.mu.RUnlock()

	var results []core.HookExecutionResult
	var firstFatal error

	for _, h := range matching {
		result := d.runOne(ctx, h, event)
		results = append(results, result)
		d.recordStats(h.Name, result)
		if d.onRun != nil {
			d.onRun("hook_execution_ms", float64(result.ExecutionTimeMs), map[string]string{"hook": h.Name})
		}

		if !result.Success && !h.ContinueOnError && firstFatal == nil {
			firstFatal = &core.FatalError{Message: "hook " + h.Name + " failed: " + result.Error}
			break
		}
	}

	return results, firstFatal
}

func (d *Dispatcher) runOne(ctx context.Context, h *core.Hook, event core.HookEvent) core.HookExecutionResult {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shell, flag := "sh", "-c"
	if runtime.GOOS == "windows" {
		shell, flag = "cmd", "/C"
	}
	cmd := exec.CommandContext(runCtx, shell, flag, h.Command)

	eventJSON, err := event.ToJSON()
	if err != nil {
		return core.HookExecutionResult{HookName: h.Name, EventType: event.EventType, Success: false, Error: err.Error()}
	}

	env := cmd.Environ()
	env = append(env,
		"HOOK_EVENT_JSON="+eventJSON,
		"HOOK_EVENT_TYPE="+string(event.EventType),
		"HOOK_SESSION_ID="+event.SessionID,
	)
	for k, v := range h.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env
	if h.WorkingDir != "" {
		cmd.Dir = h.WorkingDir
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return core.HookExecutionResult{HookName: h.Name, EventType: event.EventType, Success: false, Error: err.Error()}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return core.HookExecutionResult{HookName: h.Name, EventType: event.EventType, Success: false, Error: err.Error()}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return core.HookExecutionResult{
			HookName: h.Name, EventType: event.EventType, Success: false,
			Error: err.Error(), ExecutionTimeMs: time.Since(start).Milliseconds(),
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); copyLines(&stdoutBuf, stdoutPipe) }()
	go func() { defer wg.Done(); copyLines(&stderrBuf, stderrPipe) }()
	wg.Wait()

	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	result := core.HookExecutionResult{
		HookName:        h.Name,
		EventType:       event.EventType,
		Stdout:          stdoutBuf.String(),
		Stderr:          stderrBuf.String(),
		ExecutionTimeMs: elapsed.Milliseconds(),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.Success = false
		result.Error = "timed out"
		return result
	}

	if waitErr != nil {
		result.Success = false
		result.Error = waitErr.Error()
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			result.ExitCode = &code
		}
		return result
	}

	code := 0
	result.ExitCode = &code
	result.Success = true
	return result
}

func copyLines(dst *bytes.Buffer, src io.Reader) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		dst.WriteString(scanner.Text())
		dst.WriteByte('\n')
	}
}

func (d *Dispatcher) recordStats(name string, result core.HookExecutionResult) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	s, ok := d.stats[name]
	if !ok {
		s = &core.HookStats{}
		d.stats[name] = s
	}
	s.TotalExecutions++
	if result.Success {
		s.SuccessfulExecutions++
	} else {
		s.FailedExecutions++
	}
	s.TotalExecutionTimeMs += uint64(result.ExecutionTimeMs)
	now := time.Now()
	s.LastExecution = &now
}

// Stats returns a snapshot of a hook's execution statistics.
func (d *Dispatcher) Stats(name string) (core.HookStats, bool) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	s, ok := d.stats[name]
	if !ok {
		return core.HookStats{}, false
	}
	return *s, true
}

// Hooks returns a snapshot of the registered hook set, priority-sorted.
func (d *Dispatcher) Hooks() []*core.Hook {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*core.Hook, len(d.hooks))
	copy(out, d.hooks)
	return out
}
