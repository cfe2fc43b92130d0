package core

import (
	"encoding/json"
	"time"
)

// HookEventType enumerates the lifecycle events hooks can subscribe to.
type HookEventType string

const (
	EventSessionStart HookEventType = "session_start"
	EventSessionEnd   HookEventType = "session_end"
	EventPreToolUse   HookEventType = "pre_tool_use"
	EventPostToolUse  HookEventType = "post_tool_use"
	EventToolError    HookEventType = "tool_error"
	EventStepStart    HookEventType = "step_start"
	EventStepComplete HookEventType = "step_complete"
	EventStepError    HookEventType = "step_error"
	EventGoalStart    HookEventType = "goal_start"
	EventGoalComplete HookEventType = "goal_complete"
	EventUserPrompt   HookEventType = "user_prompt"
	EventApproval     HookEventType = "approval"
)

// Hook is a user-defined external command subscribed to lifecycle events.
type Hook struct {
	Name            string
	Events          []HookEventType
	Priority        int // 0-255, lower runs earlier
	Command         string
	Enabled         bool
	Timeout         time.Duration
	Env             map[string]string
	WorkingDir      string
	ContinueOnError bool
}

// HandlesEvent reports whether this hook is enabled for the given type.
func (h *Hook) HandlesEvent(t HookEventType) bool {
	if !h.Enabled {
		return false
	}
	for _, e := range h.Events {
		if e == t {
			return true
		}
	}
	return false
}

// HookEventContextKind tags the variant carried by HookEvent.Context.
type HookEventContextKind string

const (
	ContextSession    HookEventContextKind = "session"
	ContextTool       HookEventContextKind = "tool"
	ContextStep       HookEventContextKind = "step"
	ContextGoal       HookEventContextKind = "goal"
	ContextUserPrompt HookEventContextKind = "user_prompt"
	ContextApproval   HookEventContextKind = "approval"
)

// HookEventContext is a tagged variant of event-shape-specific fields;
// only the fields matching Kind are populated.
type HookEventContext struct {
	Kind HookEventContextKind

	// Session
	SessionReason string
	// Tool
	ToolName string
	ToolArgs map[string]interface{}
	// Step
	StepID string
	TaskID string
	// Goal
	Goal string
	// UserPrompt
	Prompt string
	// Approval
	ActionID string
	Decision string
}

// HookEvent is dispatched to every hook whose Events include its type.
type HookEvent struct {
	EventType HookEventType
	Timestamp time.Time
	SessionID string
	Context   HookEventContext
}

// ToJSON serializes the event for the HOOK_EVENT_JSON environment
// variable passed to hook child processes.
func (e *HookEvent) ToJSON() (string, error) {
	payload := map[string]interface{}{
		"event_type": e.EventType,
		"timestamp":  e.Timestamp.Format(time.RFC3339),
		"session_id": e.SessionID,
		"context":    e.Context,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// HookExecutionResult is the outcome of running a single hook once.
type HookExecutionResult struct {
	HookName        string
	EventType       HookEventType
	Success         bool
	ExitCode        *int
	Stdout          string
	Stderr          string
	ExecutionTimeMs int64
	Error           string
}

// HookStats accumulates per-hook execution counters.
type HookStats struct {
	TotalExecutions      uint64
	SuccessfulExecutions uint64
	FailedExecutions     uint64
	TotalExecutionTimeMs uint64
	LastExecution        *time.Time
}
