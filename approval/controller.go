package approval

import (
	"context"
	"sync"

	"github.com/localfirst/agentcore/core"
)

// EventSink is the outbound UI event channel: the named events the
// controller emits while an approval is pending.
type EventSink interface {
	EmitStatusUpdate(paused bool, reason string)
	EmitPermissionRequired(req Request)
}

// NoOpEventSink discards every event; useful in tests and headless runs.
type NoOpEventSink struct{}

func (NoOpEventSink) EmitStatusUpdate(bool, string)    {}
func (NoOpEventSink) EmitPermissionRequired(Request) {}

type pendingEntry struct {
	ch              chan Decision
	workflowHash    string
	actionSignature string
}

// Controller produces pending approval records, blocks on them, and
// consults the TrustStore so repeated runs of a trusted workflow are
// non-interactive.
type Controller struct {
	trust TrustStore
	sink  EventSink
	log   core.Logger

	pendingMu sync.Mutex
	pending   map[string]*pendingEntry

	hashMu              sync.Mutex
	currentWorkflowHash string
}

// New constructs a Controller backed by trust, emitting UI events to sink.
func New(trust TrustStore, sink EventSink, log core.Logger) *Controller {
	if sink == nil {
		sink = NoOpEventSink{}
	}
	if log == nil {
		log = core.NoOpLogger{}
	}
	return &Controller{
		trust:   trust,
		sink:    sink,
		log:     log,
		pending: make(map[string]*pendingEntry),
	}
}

// SetCurrentWorkflowHash sets the hash the controller fills into
// requests that arrive without one.
func (c *Controller) SetCurrentWorkflowHash(hash string) {
	c.hashMu.Lock()
	defer c.hashMu.Unlock()
	c.currentWorkflowHash = hash
}

func (c *Controller) currentHash() string {
	c.hashMu.Lock()
	defer c.hashMu.Unlock()
	return c.currentWorkflowHash
}

// RequestApproval blocks until a decision arrives, or the trust store
// already covers this (workflow_hash, action_signature) pair.
func (c *Controller) RequestApproval(ctx context.Context, req Request) (Outcome, error) {
	if req.WorkflowHash == "" {
		req.WorkflowHash = c.currentHash()
	}
	risk, scope := Classify(req)
	if req.RiskLevel == "" {
		req.RiskLevel = risk
	}
	if req.Scope.Kind == "" {
		req.Scope = scope
	}

	if req.WorkflowHash != "" && c.trust.IsTrusted(req.WorkflowHash, req.ActionSignature) {
		return Outcome{Decision: Decision{Kind: DecisionApproved, Trust: false}}, nil
	}

	entry := &pendingEntry{
		ch:              make(chan Decision, 1),
		workflowHash:    req.WorkflowHash,
		actionSignature: req.ActionSignature,
	}

	c.pendingMu.Lock()
	if _, exists := c.pending[req.ActionID]; exists {
		c.pendingMu.Unlock()
		return Outcome{}, core.NewFrameworkError("approval.RequestApproval", "approval", core.ErrDuplicateActionID).WithID(req.ActionID)
	}
	c.pending[req.ActionID] = entry
	c.pendingMu.Unlock()

	c.sink.EmitStatusUpdate(true, "awaiting approval: "+req.Title)
	c.sink.EmitPermissionRequired(req)

	select {
	case decision, ok := <-entry.ch:
		if !ok {
			return Outcome{}, &core.ApprovalChannelDroppedError{ActionID: req.ActionID}
		}
		if decision.Kind == DecisionApproved && decision.Trust {
			if err := c.trust.Trust(req.WorkflowHash, req.ActionSignature); err != nil {
				c.log.Error("failed to persist trust store admission", map[string]interface{}{"error": err.Error()})
			}
		}
		return Outcome{Decision: decision}, nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, req.ActionID)
		c.pendingMu.Unlock()
		return Outcome{}, ctx.Err()
	}
}

// Resolve delivers a decision for a pending action_id, as the UI
// would when the user responds.
func (c *Controller) Resolve(actionID string, decision Decision) error {
	c.pendingMu.Lock()
	entry, ok := c.pending[actionID]
	if ok {
		delete(c.pending, actionID)
	}
	c.pendingMu.Unlock()

	if !ok {
		return core.NewFrameworkError("approval.Resolve", "approval", core.ErrNotPending).WithID(actionID)
	}

	entry.ch <- decision
	return nil
}

// Drop closes a pending action's channel without a decision, modeling
// a UI crash; RequestApproval surfaces ApprovalChannelDropped.
func (c *Controller) Drop(actionID string) error {
	c.pendingMu.Lock()
	entry, ok := c.pending[actionID]
	if ok {
		delete(c.pending, actionID)
	}
	c.pendingMu.Unlock()

	if !ok {
		return core.NewFrameworkError("approval.Drop", "approval", core.ErrNotPending).WithID(actionID)
	}
	close(entry.ch)
	return nil
}

// PendingCount reports how many approvals are currently awaiting a
// decision; used by the scheduler's status reporting.
func (c *Controller) PendingCount() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}
