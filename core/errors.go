package core

import (
	"errors"
	"fmt"
)

// Sentinel errors, comparable with errors.Is.
var (
	ErrInvalidTaskState    = errors.New("invalid task state")
	ErrIllegalTransition   = errors.New("illegal task state transition")
	ErrTaskNotFound        = errors.New("task not found")
	ErrQueueEmpty          = errors.New("queue empty")
	ErrNotPending          = errors.New("approval not pending")
	ErrDuplicateActionID   = errors.New("duplicate action id")
	ErrDuplicateHookName   = errors.New("duplicate hook name")
	ErrHookNotFound        = errors.New("hook not found")
	ErrCacheEntryNotFound  = errors.New("cache entry not found")
	ErrMaxRetriesExceeded  = errors.New("maximum retries exceeded")
	ErrApprovalChannelDrop = errors.New("approval channel dropped")
)

// FrameworkError carries structured, wrappable error context: the
// operation, the component kind, and an optional entity id.
type FrameworkError struct {
	Op      string
	Kind    string
	ID      string
	Message string
	Err     error
}

func (e *FrameworkError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *FrameworkError) Unwrap() error { return e.Err }

// NewFrameworkError builds a FrameworkError; WithID/WithMessage chain.
func NewFrameworkError(op, kind string, err error) *FrameworkError {
	return &FrameworkError{Op: op, Kind: kind, Err: err}
}

func (e *FrameworkError) WithID(id string) *FrameworkError {
	e.ID = id
	return e
}

func (e *FrameworkError) WithMessage(msg string) *FrameworkError {
	e.Message = msg
	return e
}

// ErrorCategory classifies an error for retry/recovery purposes.
type ErrorCategory string

const (
	CategoryTransient     ErrorCategory = "transient"
	CategoryPermanent     ErrorCategory = "permanent"
	CategoryResourceLimit ErrorCategory = "resource_limit"
	CategoryPermission    ErrorCategory = "permission"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryUnknown       ErrorCategory = "unknown"
)

// Categorizable lets the retry driver classify any wire-taxonomy error
// without a type switch at the call site.
type Categorizable interface {
	error
	Category() ErrorCategory
	IsRetryable() bool
	RetryDelay() (int64, bool) // milliseconds, ok
}

// categoryIsRetryable is the single rule every Categorizable shares.
func categoryIsRetryable(c ErrorCategory) bool {
	return c == CategoryTransient || c == CategoryResourceLimit
}

// TransientError wraps a message that should be retried quickly.
type TransientError struct{ Message string }

func (e *TransientError) Error() string                { return e.Message }
func (e *TransientError) Category() ErrorCategory       { return CategoryTransient }
func (e *TransientError) IsRetryable() bool             { return true }
func (e *TransientError) RetryDelay() (int64, bool)     { return 1000, true }

// TimeoutError surfaces when a retry driver's overall_timeout elapses.
type TimeoutError struct{ Message string }

func (e *TimeoutError) Error() string            { return e.Message }
func (e *TimeoutError) Category() ErrorCategory   { return CategoryTransient }
func (e *TimeoutError) IsRetryable() bool         { return categoryIsRetryable(e.Category()) }
func (e *TimeoutError) RetryDelay() (int64, bool) { return 0, false }

// PermissionError maps to scope-aware UI permission prompts.
type PermissionError struct{ Message string }

func (e *PermissionError) Error() string            { return e.Message }
func (e *PermissionError) Category() ErrorCategory   { return CategoryPermission }
func (e *PermissionError) IsRetryable() bool         { return false }
func (e *PermissionError) RetryDelay() (int64, bool) { return 0, false }

// FatalError is non-retryable and terminal.
type FatalError struct{ Message string }

func (e *FatalError) Error() string            { return e.Message }
func (e *FatalError) Category() ErrorCategory   { return CategoryPermanent }
func (e *FatalError) IsRetryable() bool         { return false }
func (e *FatalError) RetryDelay() (int64, bool) { return 0, false }

// ConfigurationError means the user must fix config; never retried.
type ConfigurationError struct{ Message string }

func (e *ConfigurationError) Error() string            { return e.Message }
func (e *ConfigurationError) Category() ErrorCategory   { return CategoryConfiguration }
func (e *ConfigurationError) IsRetryable() bool         { return false }
func (e *ConfigurationError) RetryDelay() (int64, bool) { return 0, false }

// PlanParseError signals the planner's JSON extraction failed.
type PlanParseError struct{ Message string }

func (e *PlanParseError) Error() string            { return e.Message }
func (e *PlanParseError) Category() ErrorCategory   { return CategoryPermanent }
func (e *PlanParseError) IsRetryable() bool         { return false }
func (e *PlanParseError) RetryDelay() (int64, bool) { return 0, false }

// ApprovalChannelDroppedError surfaces when the pending channel closes
// without a resolution (UI crash).
type ApprovalChannelDroppedError struct{ ActionID string }

func (e *ApprovalChannelDroppedError) Error() string {
	return fmt.Sprintf("approval channel dropped for action %s", e.ActionID)
}
func (e *ApprovalChannelDroppedError) Category() ErrorCategory   { return CategoryPermanent }
func (e *ApprovalChannelDroppedError) IsRetryable() bool         { return false }
func (e *ApprovalChannelDroppedError) RetryDelay() (int64, bool) { return 0, false }

// ProtocolError surfaces SSE buffer overflow or malformed frames.
type ProtocolError struct{ Message string }

func (e *ProtocolError) Error() string            { return e.Message }
func (e *ProtocolError) Category() ErrorCategory   { return CategoryPermanent }
func (e *ProtocolError) IsRetryable() bool         { return false }
func (e *ProtocolError) RetryDelay() (int64, bool) { return 0, false }

// LLMErrorKind tags the LLMError variant.
type LLMErrorKind string

const (
	LLMRateLimit       LLMErrorKind = "rate_limit"
	LLMContextLength   LLMErrorKind = "context_length"
	LLMContentFilter   LLMErrorKind = "content_filter"
	LLMAPIError        LLMErrorKind = "api"
	LLMNetworkError    LLMErrorKind = "network"
	LLMInvalidResponse LLMErrorKind = "invalid_response"
	LLMModelNotAvail   LLMErrorKind = "model_not_available"
	LLMAuthError       LLMErrorKind = "authentication"
	LLMTimeout         LLMErrorKind = "timeout"
)

// LLMError is the router/provider-facing error variant.
type LLMError struct {
	Kind    LLMErrorKind
	Message string
}

func (e *LLMError) Error() string { return fmt.Sprintf("llm error (%s): %s", e.Kind, e.Message) }

func (e *LLMError) Category() ErrorCategory {
	switch e.Kind {
	case LLMRateLimit:
		return CategoryResourceLimit
	case LLMContextLength, LLMModelNotAvail, LLMAuthError:
		return CategoryConfiguration
	case LLMContentFilter:
		return CategoryPermanent
	default:
		return CategoryTransient
	}
}

func (e *LLMError) IsRetryable() bool { return categoryIsRetryable(e.Category()) }

func (e *LLMError) RetryDelay() (int64, bool) {
	switch e.Kind {
	case LLMRateLimit:
		return 10000, true
	case LLMTimeout:
		return 2000, true
	case LLMNetworkError, LLMAPIError:
		return 1000, true
	default:
		return 0, false
	}
}

// ToolErrorKind tags the ToolError variant.
type ToolErrorKind string

const (
	ToolBrowserError     ToolErrorKind = "browser"
	ToolFileSystemError  ToolErrorKind = "filesystem"
	ToolDatabaseError    ToolErrorKind = "database"
	ToolAPIError         ToolErrorKind = "api"
	ToolUIAutomationErr  ToolErrorKind = "ui_automation"
	ToolNotFound         ToolErrorKind = "not_found"
	ToolInvalidParams    ToolErrorKind = "invalid_parameters"
)

// ToolError is the executor-facing error variant. Category is derived
// from message substrings, mirroring categorization.rs exactly.
type ToolError struct {
	Kind    ToolErrorKind
	Message string
}

func (e *ToolError) Error() string { return fmt.Sprintf("tool error (%s): %s", e.Kind, e.Message) }

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(sub) > 0 && len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}

func (e *ToolError) Category() ErrorCategory {
	msg := e.Message
	switch e.Kind {
	case ToolBrowserError:
		if containsAny(msg, "crashed", "Crashed") {
			return CategoryPermanent
		}
		return CategoryTransient
	case ToolFileSystemError:
		switch {
		case containsAny(msg, "not found", "Not found"):
			return CategoryPermanent
		case containsAny(msg, "permission", "Permission"):
			return CategoryPermission
		case containsAny(msg, "disk full", "No space"):
			return CategoryResourceLimit
		default:
			return CategoryTransient
		}
	case ToolDatabaseError:
		if containsAny(msg, "corrupted", "Corrupted") {
			return CategoryPermanent
		}
		return CategoryTransient
	case ToolAPIError:
		switch {
		case containsAny(msg, "rate limit", "429"):
			return CategoryResourceLimit
		case containsAny(msg, "401", "403"):
			return CategoryPermission
		case containsAny(msg, "400", "404"):
			return CategoryPermanent
		default:
			return CategoryTransient
		}
	case ToolUIAutomationErr:
		if containsAny(msg, "permission") {
			return CategoryPermission
		}
		return CategoryTransient
	case ToolNotFound, ToolInvalidParams:
		return CategoryPermanent
	default:
		return CategoryTransient
	}
}

func (e *ToolError) IsRetryable() bool { return categoryIsRetryable(e.Category()) }

func (e *ToolError) RetryDelay() (int64, bool) {
	switch e.Category() {
	case CategoryTransient:
		return 1000, true
	case CategoryResourceLimit:
		return 5000, true
	default:
		return 0, false
	}
}

// ResourceErrorKind tags the ResourceError variant.
type ResourceErrorKind string

const (
	ResourceCPU         ResourceErrorKind = "cpu"
	ResourceMemory      ResourceErrorKind = "memory"
	ResourceNetwork     ResourceErrorKind = "network"
	ResourceStorage     ResourceErrorKind = "storage"
	ResourceConcurrency ResourceErrorKind = "concurrency"
)

// ResourceError is always a ResourceLimit category and always
// retryable; storage exhaustion carries no suggested delay (RetryDelay
// returns ok=false).
type ResourceError struct {
	Kind    ResourceErrorKind
	Message string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource error (%s): %s", e.Kind, e.Message)
}
func (e *ResourceError) Category() ErrorCategory { return CategoryResourceLimit }
func (e *ResourceError) IsRetryable() bool        { return true }

func (e *ResourceError) RetryDelay() (int64, bool) {
	switch e.Kind {
	case ResourceMemory, ResourceNetwork:
		return 5000, true
	case ResourceCPU:
		return 3000, true
	case ResourceConcurrency:
		return 2000, true
	default:
		return 0, false
	}
}

// IsRetryable checks whether any error in err's chain classifies as
// retryable per the taxonomy, falling back to false for plain errors.
func IsRetryable(err error) bool {
	var c Categorizable
	if errors.As(err, &c) {
		return c.IsRetryable()
	}
	return false
}

// Classify returns the ErrorCategory of err, or CategoryUnknown if it
// doesn't implement Categorizable.
func Classify(err error) ErrorCategory {
	var c Categorizable
	if errors.As(err, &c) {
		return c.Category()
	}
	return CategoryUnknown
}
