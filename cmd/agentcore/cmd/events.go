package cmd

import (
	"github.com/localfirst/agentcore/approval"
	"github.com/localfirst/agentcore/core"
	"github.com/localfirst/agentcore/metrics"
)

// metricsEventSink implements scheduler.EventSink, turning task
// lifecycle events into both a log line and a Prometheus counter
// sample, so task_events_total is fed by real scheduler activity
// rather than sitting unwired.
type metricsEventSink struct {
	reg *metrics.Registry
	log core.Logger
}

func (s *metricsEventSink) EmitTaskEvent(event string, task *core.Task) {
	s.reg.Record("task_event", 1, map[string]string{"event": event})
	s.log.Info("task event", map[string]interface{}{"event": event, "task_id": task.ID, "status": string(task.Status)})
}

func (s *metricsEventSink) EmitStatusUpdate(paused bool, reason string) {
	s.log.Info("scheduler status update", map[string]interface{}{"paused": paused, "reason": reason})
}

// loggingApprovalSink implements approval.EventSink, logging pending
// approvals and status changes in place of a UI surface.
type loggingApprovalSink struct {
	log core.Logger
}

func (s *loggingApprovalSink) EmitStatusUpdate(paused bool, reason string) {
	s.log.Info("approval status update", map[string]interface{}{"paused": paused, "reason": reason})
}

func (s *loggingApprovalSink) EmitPermissionRequired(req approval.Request) {
	s.log.Info("permission required", map[string]interface{}{
		"action_id": req.ActionID, "tool": req.ToolName, "risk": string(req.RiskLevel),
	})
}
