// Package core holds the domain model, error taxonomy, and logging
// interfaces shared by every other agentcore package.
package core

import "time"

// Priority orders tasks in the scheduler's queue, highest first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// TaskStatus is the single unified state machine for a Task. The
// source carried two overlapping enumerations (scheduler vs.
// persistence layer); this model keeps one.
type TaskStatus string

const (
	StatusPending         TaskStatus = "pending"
	StatusWaitingApproval TaskStatus = "waiting_approval"
	StatusExecuting       TaskStatus = "executing"
	StatusPaused          TaskStatus = "paused"
	StatusCompleted       TaskStatus = "completed"
	StatusFailed          TaskStatus = "failed"
	StatusCancelled       TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transition is legal.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// legalTransitions enumerates every edge of the task state machine.
var legalTransitions = map[TaskStatus][]TaskStatus{
	StatusPending:         {StatusWaitingApproval, StatusExecuting, StatusCancelled},
	StatusWaitingApproval: {StatusExecuting, StatusCancelled},
	StatusExecuting:       {StatusCompleted, StatusFailed, StatusCancelled, StatusPaused},
	StatusPaused:          {StatusExecuting, StatusCancelled},
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to TaskStatus) bool {
	for _, candidate := range legalTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Task is the core scheduling unit.
type Task struct {
	ID               string
	Name             string
	Description      string
	Priority         Priority
	Status           TaskStatus
	Progress         float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
	Steps            []Step
	CurrentStep      int
	Context          map[string]interface{}
	RequiresApproval bool
	AutoApprove      bool
	AutoResume       bool
	RetryCount       int
	MaxRetries       int
	FailureReason    string
}

// Validate checks the cross-field invariants a well-formed Task holds.
func (t *Task) Validate() error {
	if t.CurrentStep > len(t.Steps) {
		return NewFrameworkError("Task.Validate", "task", ErrInvalidTaskState).WithID(t.ID)
	}
	if t.Status.IsTerminal() && t.CompletedAt == nil {
		return NewFrameworkError("Task.Validate", "task", ErrInvalidTaskState).WithID(t.ID)
	}
	if !t.Status.IsTerminal() && t.CompletedAt != nil {
		return NewFrameworkError("Task.Validate", "task", ErrInvalidTaskState).WithID(t.ID)
	}
	if t.Status == StatusCompleted && t.Progress != 1.0 {
		return NewFrameworkError("Task.Validate", "task", ErrInvalidTaskState).WithID(t.ID)
	}
	if t.RetryCount > t.MaxRetries {
		return NewFrameworkError("Task.Validate", "task", ErrInvalidTaskState).WithID(t.ID)
	}
	return nil
}

// ActionKind tags the variant carried by Step.Action.
type ActionKind string

const (
	ActionScreenshot      ActionKind = "screenshot"
	ActionClick           ActionKind = "click"
	ActionType            ActionKind = "type"
	ActionNavigate        ActionKind = "navigate"
	ActionWaitForElement  ActionKind = "wait_for_element"
	ActionExecuteCommand  ActionKind = "execute_command"
	ActionReadFile        ActionKind = "read_file"
	ActionWriteFile       ActionKind = "write_file"
	ActionSearchText      ActionKind = "search_text"
	ActionScroll          ActionKind = "scroll"
	ActionPressKey        ActionKind = "press_key"
)

// Action is a tagged variant; only the field matching Kind is read.
type Action struct {
	Kind ActionKind

	// Click
	Target ClickTarget
	// Type
	Text string
	// Navigate
	URL string
	// WaitForElement
	Timeout time.Duration
	// ExecuteCommand
	Command string
	Args    []string
	// ReadFile / WriteFile
	Path    string
	Content string
	// SearchText
	Query string
	// Scroll
	Direction string
	Amount    int
	// PressKey
	Keys []string
}

// ClickTargetKind tags the variant carried by ClickTarget.
type ClickTargetKind string

const (
	TargetCoordinates ClickTargetKind = "coordinates"
	TargetUIAElement  ClickTargetKind = "uia_element"
	TargetImageMatch  ClickTargetKind = "image_match"
	TargetTextMatch   ClickTargetKind = "text_match"
)

// ClickTarget is a tagged variant describing how to locate a click point.
type ClickTarget struct {
	Kind ClickTargetKind

	// Coordinates
	X, Y float64
	// UIAElement
	ElementID string
	// ImageMatch
	ImagePath string
	Threshold float64
	// TextMatch
	Text  string
	Fuzzy bool
}

// Step is an immutable (post-planning) unit of task execution.
type Step struct {
	ID              string
	Description     string
	Action          Action
	Timeout         time.Duration
	RetryOnFailure  bool
	ExpectedResult  string
}

// AgentConfig holds the tunables the scheduler and resource guard read.
type AgentConfig struct {
	MaxConcurrentTasks int     `yaml:"max_concurrent_tasks"`
	MaxRetries         int     `yaml:"max_retries"`
	CPULimitPercent    float64 `yaml:"cpu_limit_percent"`
	MemoryLimitMB      float64 `yaml:"memory_limit_mb"`
	AutoApprove        bool    `yaml:"auto_approve"`
}

// DefaultAgentConfig returns the tunables a fresh install runs with.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		MaxConcurrentTasks: 3,
		MaxRetries:         3,
		CPULimitPercent:    80,
		MemoryLimitMB:      2048,
		AutoApprove:        false,
	}
}
