// Package executor provides the default core.Executor cmd/agentcore
// wires into the scheduler. LocalExecutor performs the file and
// process action kinds for real and returns a deterministic,
// clearly-labeled simulated result for the UI-bound kinds (screenshot,
// click, type, navigate, wait_for_element, scroll, press_key), which
// belong to a platform-specific device-automation backend rather than
// this module.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/localfirst/agentcore/core"
)

// LocalExecutor implements core.Executor against the local machine's
// filesystem and process space.
type LocalExecutor struct {
	log core.Logger
	tel core.Telemetry
}

// Option configures a LocalExecutor.
type Option func(*LocalExecutor)

// WithLogger attaches a logger; defaults to core.NoOpLogger.
func WithLogger(log core.Logger) Option {
	return func(e *LocalExecutor) { e.log = log }
}

// WithTelemetry attaches a telemetry provider; defaults to core.NoOpTelemetry.
func WithTelemetry(tel core.Telemetry) Option {
	return func(e *LocalExecutor) { e.tel = tel }
}

// New builds a LocalExecutor.
func New(opts ...Option) *LocalExecutor {
	e := &LocalExecutor{log: core.NoOpLogger{}, tel: core.NoOpTelemetry{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteStep dispatches on step.Action.Kind, matching the tagged-variant
// read pattern the rest of core follows: only the fields relevant to Kind
// are consulted.
func (e *LocalExecutor) ExecuteStep(ctx context.Context, step core.Step, visionCtx map[string]interface{}) (core.StepResult, error) {
	ctx, span := e.tel.StartSpan(ctx, "executor.ExecuteStep")
	defer span.End()
	span.SetAttribute("action.kind", string(step.Action.Kind))

	var result core.StepResult
	var err error

	switch step.Action.Kind {
	case core.ActionExecuteCommand:
		result, err = e.executeCommand(ctx, step.Action)
	case core.ActionReadFile:
		result, err = e.readFile(step.Action)
	case core.ActionWriteFile:
		result, err = e.writeFile(step.Action)
	case core.ActionSearchText:
		result, err = e.searchText(step.Action)
	case core.ActionScreenshot, core.ActionClick, core.ActionType,
		core.ActionNavigate, core.ActionWaitForElement,
		core.ActionScroll, core.ActionPressKey:
		result, err = e.simulateUIAction(step.Action, visionCtx)
	default:
		err = &core.FatalError{Message: "executor: unknown action kind " + string(step.Action.Kind)}
	}

	if err != nil {
		span.RecordError(err)
		e.log.ErrorWithContext(ctx, "step execution failed", map[string]interface{}{
			"step_id": step.ID, "action_kind": string(step.Action.Kind), "error": err.Error(),
		})
		return core.StepResult{Success: false, Error: err}, err
	}
	return result, nil
}

func (e *LocalExecutor) executeCommand(ctx context.Context, a core.Action) (core.StepResult, error) {
	if a.Command == "" {
		return core.StepResult{}, &core.FatalError{Message: "executor: execute_command requires Command"}
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.Command, a.Args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return core.StepResult{}, &core.TransientError{Message: "executor: command timed out after " + timeout.String()}
		}
		return core.StepResult{}, core.NewFrameworkError("executor.executeCommand", "executor", err).WithMessage(out.String())
	}
	return core.StepResult{Success: true, Result: out.String()}, nil
}

func (e *LocalExecutor) readFile(a core.Action) (core.StepResult, error) {
	if a.Path == "" {
		return core.StepResult{}, &core.FatalError{Message: "executor: read_file requires Path"}
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return core.StepResult{}, core.NewFrameworkError("executor.readFile", "executor", err)
	}
	return core.StepResult{Success: true, Result: string(data)}, nil
}

func (e *LocalExecutor) writeFile(a core.Action) (core.StepResult, error) {
	if a.Path == "" {
		return core.StepResult{}, &core.FatalError{Message: "executor: write_file requires Path"}
	}
	if err := os.WriteFile(a.Path, []byte(a.Content), 0o644); err != nil {
		return core.StepResult{}, core.NewFrameworkError("executor.writeFile", "executor", err)
	}
	return core.StepResult{Success: true, Result: fmt.Sprintf("wrote %d bytes to %s", len(a.Content), a.Path)}, nil
}

func (e *LocalExecutor) searchText(a core.Action) (core.StepResult, error) {
	if a.Path == "" || a.Query == "" {
		return core.StepResult{}, &core.FatalError{Message: "executor: search_text requires Path and Query"}
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return core.StepResult{}, core.NewFrameworkError("executor.searchText", "executor", err)
	}
	var matches []string
	for i, line := range strings.Split(string(data), "\n") {
		if strings.Contains(line, a.Query) {
			matches = append(matches, fmt.Sprintf("%d: %s", i+1, line))
		}
	}
	return core.StepResult{Success: true, Result: strings.Join(matches, "\n")}, nil
}

// simulateUIAction stands in for device automation (browser DOM,
// CDP transport, UI windowing) that belongs to an external backend. It
// reports success with a description of what a real backend would have
// done, so the scheduler and its retry/approval machinery can be
// exercised end-to-end without a platform-specific UI driver.
func (e *LocalExecutor) simulateUIAction(a core.Action, visionCtx map[string]interface{}) (core.StepResult, error) {
	desc := describeUIAction(a)
	e.log.Debug("simulated UI action", map[string]interface{}{
		"action_kind": string(a.Kind), "description": desc, "os": runtime.GOOS,
	})
	return core.StepResult{Success: true, Result: desc}, nil
}

func describeUIAction(a core.Action) string {
	switch a.Kind {
	case core.ActionScreenshot:
		return "simulated: captured screenshot"
	case core.ActionClick:
		return "simulated: clicked " + describeTarget(a.Target)
	case core.ActionType:
		return fmt.Sprintf("simulated: typed %q", a.Text)
	case core.ActionNavigate:
		return "simulated: navigated to " + a.URL
	case core.ActionWaitForElement:
		return "simulated: waited for " + describeTarget(a.Target)
	case core.ActionScroll:
		return fmt.Sprintf("simulated: scrolled %s by %d", a.Direction, a.Amount)
	case core.ActionPressKey:
		return "simulated: pressed " + strings.Join(a.Keys, "+")
	default:
		return "simulated: no-op"
	}
}

func describeTarget(t core.ClickTarget) string {
	switch t.Kind {
	case core.TargetCoordinates:
		return fmt.Sprintf("coordinates (%.0f, %.0f)", t.X, t.Y)
	case core.TargetUIAElement:
		return "element " + t.ElementID
	case core.TargetImageMatch:
		return "image " + t.ImagePath
	case core.TargetTextMatch:
		return "text match"
	default:
		return "unknown target"
	}
}
