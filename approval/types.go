// Package approval implements per-action trust gating: pending
// approval bookkeeping, blocking resolution, and trust-store
// memoization keyed by (workflow_hash, action_signature) so repeated
// runs of a trusted workflow stay non-interactive.
package approval

// RiskLevel classifies how dangerous an action appears.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ScopeKind tags the variant carried by Scope.
type ScopeKind string

const (
	ScopeTerminal   ScopeKind = "terminal"
	ScopeFilesystem ScopeKind = "filesystem"
	ScopeBrowser    ScopeKind = "browser"
	ScopeUI         ScopeKind = "ui"
	ScopeMCP        ScopeKind = "mcp"
	ScopeUnknown    ScopeKind = "unknown"
)

// Scope describes what an action touches, with shape-specific optional
// fields populated depending on Kind.
type Scope struct {
	Kind        ScopeKind
	Command     string
	Cwd         string
	Path        string
	Domain      string
	Description string
}

// DecisionKind tags the outcome of resolving a pending approval.
type DecisionKind string

const (
	DecisionApproved DecisionKind = "approved"
	DecisionRejected DecisionKind = "rejected"
)

// Decision carries the resolution a caller passes to Resolve.
type Decision struct {
	Kind   DecisionKind
	Trust  bool   // only meaningful when Kind == DecisionApproved
	Reason string // only meaningful when Kind == DecisionRejected
}

// Request is a payload the caller submits to RequestApproval. Fields
// left zero (RiskLevel, Scope) are filled in by Classify.
type Request struct {
	ActionID        string
	ToolName        string
	Title           string
	Description     string
	Reason          string
	RiskLevel       RiskLevel
	Scope           Scope
	WorkflowHash    string
	ActionSignature string
}

// Outcome is what RequestApproval returns.
type Outcome struct {
	Decision Decision
}
