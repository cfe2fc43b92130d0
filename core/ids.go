package core

import (
	"strings"

	"github.com/google/uuid"
)

// NewTaskID produces a "task_<8 hex chars>" identifier.
func NewTaskID() string {
	return "task_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// NewActionID produces a UUID string for ApprovalRequest.action_id.
func NewActionID() string {
	return uuid.New().String()
}

// NewSessionID produces a UUID string for a HookEvent.session_id.
func NewSessionID() string {
	return uuid.New().String()
}
