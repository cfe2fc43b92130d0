// Package scheduler implements the task scheduler and lifecycle
// engine: priority queueing, a concurrency-bounded tick loop, the
// per-task step loop with retry integration, pause/resume/cancel, and
// startup resumption.
package scheduler

import (
	"context"

	"github.com/localfirst/agentcore/approval"
	"github.com/localfirst/agentcore/core"
)

// TaskStore is the persistence-layer contract this package drives.
// The concrete implementation lives in package store (sqlx-backed).
type TaskStore interface {
	SaveTask(ctx context.Context, t *core.Task) error
	GetTask(ctx context.Context, id string) (*core.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*core.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// TaskFilter narrows ListTasks; a nil field means "no constraint."
type TaskFilter struct {
	Status *core.TaskStatus
}

// Planner turns a free-text goal into an ordered Step plan. Matches
// planner.Planner's method set without importing it directly, so
// tests can substitute a stub.
type Planner interface {
	Plan(ctx context.Context, description string) []core.Step
}

// ApprovalController gates side-effectful steps.
type ApprovalController interface {
	RequestApproval(ctx context.Context, req approval.Request) (approval.Outcome, error)
}

// HookDispatcher fans lifecycle events out to configured hooks.
type HookDispatcher interface {
	ExecuteHooks(ctx context.Context, event core.HookEvent) ([]core.HookExecutionResult, error)
}

// ResourceGuard reports whether the process is within its configured
// CPU/memory ceilings.
type ResourceGuard interface {
	Check(ctx context.Context) (bool, error)
}

// EventSink is the outbound UI event channel: the named task:* events
// plus agent:status:update.
type EventSink interface {
	EmitTaskEvent(event string, task *core.Task)
	EmitStatusUpdate(paused bool, reason string)
}

// NoOpEventSink discards every event; useful in tests and headless runs.
type NoOpEventSink struct{}

func (NoOpEventSink) EmitTaskEvent(string, *core.Task)  {}
func (NoOpEventSink) EmitStatusUpdate(bool, string) {}
