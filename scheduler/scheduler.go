package scheduler

import (
	"container/heap"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/localfirst/agentcore/approval"
	"github.com/localfirst/agentcore/core"
	"github.com/localfirst/agentcore/resilience"
)

const tickInterval = 100 * time.Millisecond

// guardBackoff is how long the tick loop sleeps after the resource
// guard reports an over-ceiling sample; a var so tests can shorten it.
var guardBackoff = 5 * time.Second

// Scheduler owns the pending priority queue, a concurrency-bounded
// running set, and the per-task step loop; every state transition is
// persisted via store.
type Scheduler struct {
	cfg      core.AgentConfig
	store    TaskStore
	planner  Planner
	approval ApprovalController
	executor core.Executor
	hooks    HookDispatcher
	guard    ResourceGuard
	sink     EventSink
	log      core.Logger
	telemetry core.Telemetry

	queueMu sync.Mutex
	queue   *taskQueue

	runningMu sync.Mutex
	running   map[string]context.CancelFunc

	pauseMu    sync.Mutex
	pauseWake  map[string]chan struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l core.Logger) Option         { return func(s *Scheduler) { s.log = l } }
func WithTelemetry(t core.Telemetry) Option   { return func(s *Scheduler) { s.telemetry = t } }
func WithEventSink(sink EventSink) Option     { return func(s *Scheduler) { s.sink = sink } }

// New constructs a Scheduler. executor and hooks may be nil only in
// tests that never execute a real step.
func New(cfg core.AgentConfig, store TaskStore, planner Planner, approvalCtrl ApprovalController, executor core.Executor, hooks HookDispatcher, guard ResourceGuard, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		store:     store,
		planner:   planner,
		approval:  approvalCtrl,
		executor:  executor,
		hooks:     hooks,
		guard:     guard,
		sink:      NoOpEventSink{},
		log:       core.NoOpLogger{},
		telemetry: core.NoOpTelemetry{},
		queue:     newTaskQueue(),
		running:   make(map[string]context.CancelFunc),
		pauseWake: make(map[string]chan struct{}),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit plans description synchronously and persists a new Pending
// task, then enqueues it.
func (s *Scheduler) Submit(ctx context.Context, name, description string, priority core.Priority, autoApprove bool) (string, error) {
	steps := s.planner.Plan(ctx, description)

	now := time.Now()
	task := &core.Task{
		ID:          core.NewTaskID(),
		Name:        name,
		Description: description,
		Priority:    priority,
		Status:      core.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Steps:       steps,
		Context:     make(map[string]interface{}),
		AutoApprove: autoApprove,
		MaxRetries:  s.cfg.MaxRetries,
	}
	task.RequiresApproval = requiresApproval(steps) && !autoApprove

	if err := task.Validate(); err != nil {
		return "", err
	}
	if err := s.store.SaveTask(ctx, task); err != nil {
		return "", err
	}
	s.sink.EmitTaskEvent("task:created", task)

	s.enqueue(task)
	return task.ID, nil
}

func (s *Scheduler) enqueue(t *core.Task) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	s.queue.push(t)
}

// requiresApproval is a deliberately conservative default: any step
// with side effects beyond reading (execute, write, click, type,
// navigate) makes the task gate for approval before it starts, unless
// the caller already marked it auto_approve.
func requiresApproval(steps []core.Step) bool {
	for _, st := range steps {
		switch st.Action.Kind {
		case core.ActionExecuteCommand, core.ActionWriteFile, core.ActionClick,
			core.ActionType, core.ActionNavigate:
			return true
		}
	}
	return false
}

// Start launches the tick loop and re-admits the resumable set: tasks
// with auto_resume whose status is Paused or Executing, left over from
// a prior run. Other non-terminal tasks are left as they are.
func (s *Scheduler) Start(ctx context.Context) error {
	resumable, err := s.store.ListTasks(ctx, TaskFilter{})
	if err != nil {
		return err
	}
	for _, t := range resumable {
		if t.Status.IsTerminal() {
			continue
		}
		if t.AutoResume && (t.Status == core.StatusPaused || t.Status == core.StatusExecuting) {
			t.Status = core.StatusPending
			t.UpdatedAt = time.Now()
			if err := s.store.SaveTask(ctx, t); err != nil {
				s.log.Error("failed to persist resumed task", map[string]interface{}{"task_id": t.ID, "error": err.Error()})
				continue
			}
			s.enqueue(t)
		}
	}

	s.wg.Add(1)
	go s.tickLoop(ctx)
	return nil
}

// Stop signals the tick loop to exit and waits for it.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ok, err := s.guard.Check(ctx)
		if err != nil {
			s.log.Warn("resource guard check failed", map[string]interface{}{"error": err.Error()})
		}
		if !ok {
			select {
			case <-time.After(guardBackoff):
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		s.drain(ctx)
	}
}

// drain pops tasks while the running set has capacity, gating
// top-level approval before admission.
func (s *Scheduler) drain(ctx context.Context) {
	for {
		s.runningMu.Lock()
		hasCapacity := len(s.running) < s.cfg.MaxConcurrentTasks
		s.runningMu.Unlock()
		if !hasCapacity {
			return
		}

		s.queueMu.Lock()
		task, ok := s.queue.pop()
		s.queueMu.Unlock()
		if !ok {
			return
		}

		if task.RequiresApproval && !task.AutoApprove {
			task.Status = core.StatusWaitingApproval
			task.UpdatedAt = time.Now()
			if err := s.store.SaveTask(ctx, task); err != nil {
				s.log.Error("failed to persist WaitingApproval", map[string]interface{}{"task_id": task.ID, "error": err.Error()})
			}
			s.sink.EmitTaskEvent("task:paused", task)
			continue
		}

		s.admit(ctx, task)
	}
}

func (s *Scheduler) admit(parent context.Context, task *core.Task) {
	if !core.CanTransition(task.Status, core.StatusExecuting) {
		s.log.Error("illegal transition to Executing", map[string]interface{}{"task_id": task.ID, "from": string(task.Status)})
		return
	}
	task.Status = core.StatusExecuting
	task.UpdatedAt = time.Now()
	if err := s.store.SaveTask(context.Background(), task); err != nil {
		s.log.Error("failed to persist Executing", map[string]interface{}{"task_id": task.ID, "error": err.Error()})
	}
	s.sink.EmitTaskEvent("task:started", task)

	ctx, cancel := context.WithCancel(parent)
	s.runningMu.Lock()
	s.running[task.ID] = cancel
	s.runningMu.Unlock()

	s.pauseMu.Lock()
	s.pauseWake[task.ID] = make(chan struct{})
	s.pauseMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.runningMu.Lock()
			delete(s.running, task.ID)
			s.runningMu.Unlock()
			s.pauseMu.Lock()
			delete(s.pauseWake, task.ID)
			s.pauseMu.Unlock()
		}()
		s.runStepLoop(ctx, task)
	}()
}

// runStepLoop executes every step strictly in order. Pause is sampled
// at the top of the loop; cancel short-circuits remaining steps.
func (s *Scheduler) runStepLoop(ctx context.Context, task *core.Task) {
	ctx, span := s.telemetry.StartSpan(ctx, "scheduler.run_task")
	defer span.End()
	span.SetAttribute("task_id", task.ID)
	span.SetAttribute("step_count", len(task.Steps))

	for i := task.CurrentStep; i < len(task.Steps); i++ {
		if s.waitWhilePaused(ctx, task) {
			s.finishCancelled(task)
			return
		}
		if ctx.Err() != nil {
			s.finishCancelled(task)
			return
		}

		step := task.Steps[i]
		task.CurrentStep = i
		task.Progress = float64(i) / float64(len(task.Steps))
		task.UpdatedAt = time.Now()
		if err := s.store.SaveTask(ctx, task); err != nil {
			s.log.Error("failed to persist current_step", map[string]interface{}{"task_id": task.ID, "error": err.Error()})
		}
		s.sink.EmitTaskEvent("task:progress", task)

		s.emitHook(ctx, core.EventStepStart, core.HookEventContext{Kind: core.ContextStep, StepID: step.ID, TaskID: task.ID})
		s.emitHook(ctx, core.EventPreToolUse, core.HookEventContext{Kind: core.ContextTool, ToolName: string(step.Action.Kind), TaskID: task.ID})

		if err := s.approveStep(ctx, task, step); err != nil {
			s.emitHook(ctx, core.EventToolError, core.HookEventContext{Kind: core.ContextTool, ToolName: string(step.Action.Kind), TaskID: task.ID})
			s.failTask(ctx, task, err)
			return
		}

		err := s.executeStepWithRetry(ctx, task, step)

		if err != nil {
			s.emitHook(ctx, core.EventStepError, core.HookEventContext{Kind: core.ContextStep, StepID: step.ID, TaskID: task.ID})
			if ctx.Err() != nil {
				s.finishCancelled(task)
				return
			}
			s.failTask(ctx, task, err)
			return
		}

		s.emitHook(ctx, core.EventPostToolUse, core.HookEventContext{Kind: core.ContextTool, ToolName: string(step.Action.Kind), TaskID: task.ID})
		s.emitHook(ctx, core.EventStepComplete, core.HookEventContext{Kind: core.ContextStep, StepID: step.ID, TaskID: task.ID})
	}

	task.CurrentStep = len(task.Steps)
	task.Progress = 1.0
	task.Status = core.StatusCompleted
	now := time.Now()
	task.CompletedAt = &now
	task.UpdatedAt = now
	if err := s.store.SaveTask(ctx, task); err != nil {
		s.log.Error("failed to persist Completed", map[string]interface{}{"task_id": task.ID, "error": err.Error()})
	}
	s.sink.EmitTaskEvent("task:completed", task)
}

// approveStep gates a single step through the approval controller
// unless the task is marked auto_approve.
func (s *Scheduler) approveStep(ctx context.Context, task *core.Task, step core.Step) error {
	if task.AutoApprove || s.approval == nil {
		return nil
	}

	req := approval.Request{
		ActionID:        core.NewActionID(),
		ToolName:        string(step.Action.Kind),
		Title:           step.Description,
		Description:     step.Description,
		WorkflowHash:    workflowHash(task),
		ActionSignature: actionSignature(step),
	}

	outcome, err := s.approval.RequestApproval(ctx, req)
	if err != nil {
		if _, ok := err.(*core.ApprovalChannelDroppedError); ok {
			return err
		}
		return err
	}
	if outcome.Decision.Kind != approval.DecisionApproved {
		reason := outcome.Decision.Reason
		if reason == "" {
			reason = "approval rejected"
		}
		return &core.PermissionError{Message: reason}
	}
	return nil
}

// executeStepWithRetry runs the executor under the default retry
// preset for the step's action kind: browser for UI actions,
// filesystem for file actions.
func (s *Scheduler) executeStepWithRetry(ctx context.Context, task *core.Task, step core.Step) error {
	policy := policyFor(step.Action.Kind)

	stepCtx := ctx
	var cancel context.CancelFunc
	if step.Timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	failures := 0
	err := resilience.Do(stepCtx, policy, func() error {
		if s.executor == nil {
			return &core.FatalError{Message: "no executor configured"}
		}
		result, execErr := s.executor.ExecuteStep(stepCtx, step, task.Context)
		if execErr != nil {
			failures++
			return execErr
		}
		if !result.Success {
			failures++
			msg := ""
			if result.Error != nil {
				msg = result.Error.Error()
			}
			if msg == "" {
				msg = "step reported failure"
			}
			if step.RetryOnFailure {
				return &core.TransientError{Message: msg}
			}
			return &core.FatalError{Message: msg}
		}
		return nil
	})

	// A retry is a failed attempt that was followed by another attempt:
	// two failures before success is two retries; exhausting N attempts
	// is N-1 retries.
	retries := failures
	if err != nil && retries > 0 {
		retries--
	}
	if retries > task.MaxRetries {
		retries = task.MaxRetries
	}
	task.RetryCount = retries
	return err
}

func policyFor(kind core.ActionKind) resilience.Policy {
	switch kind {
	case core.ActionReadFile, core.ActionWriteFile:
		return resilience.FilesystemPolicy()
	default:
		return resilience.BrowserPolicy()
	}
}

func (s *Scheduler) failTask(ctx context.Context, task *core.Task, err error) {
	task.Status = core.StatusFailed
	task.FailureReason = err.Error()
	now := time.Now()
	task.CompletedAt = &now
	task.UpdatedAt = now
	if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
		s.log.Error("failed to persist Failed", map[string]interface{}{"task_id": task.ID, "error": saveErr.Error()})
	}
	s.sink.EmitTaskEvent("task:failed", task)
}

func (s *Scheduler) finishCancelled(task *core.Task) {
	task.Status = core.StatusCancelled
	now := time.Now()
	task.CompletedAt = &now
	task.UpdatedAt = now
	if err := s.store.SaveTask(context.Background(), task); err != nil {
		s.log.Error("failed to persist Cancelled", map[string]interface{}{"task_id": task.ID, "error": err.Error()})
	}
	s.sink.EmitTaskEvent("task:cancelled", task)
}

// waitWhilePaused blocks cooperatively while the task is Paused,
// sampled at the top of every step iteration. Returns true if the
// task was cancelled while waiting.
func (s *Scheduler) waitWhilePaused(ctx context.Context, task *core.Task) bool {
	for {
		current, err := s.store.GetTask(ctx, task.ID)
		if err != nil || current == nil {
			return false
		}
		if current.Status != core.StatusPaused {
			return false
		}

		s.pauseMu.Lock()
		wake := s.pauseWake[task.ID]
		s.pauseMu.Unlock()
		if wake == nil {
			return false
		}

		select {
		case <-wake:
			continue
		case <-ctx.Done():
			return true
		}
	}
}

func (s *Scheduler) emitHook(ctx context.Context, eventType core.HookEventType, hctx core.HookEventContext) {
	if s.hooks == nil {
		return
	}
	event := core.HookEvent{EventType: eventType, Timestamp: time.Now(), SessionID: hctx.TaskID, Context: hctx}
	if _, err := s.hooks.ExecuteHooks(ctx, event); err != nil {
		s.log.Warn("hook dispatch reported an error", map[string]interface{}{"event": string(eventType), "error": err.Error()})
	}
}

// Pause cooperatively pauses a running task; it is sampled at the top
// of the next step-loop iteration.
func (s *Scheduler) Pause(ctx context.Context, taskID string) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return core.NewFrameworkError("scheduler.Pause", "scheduler", core.ErrTaskNotFound).WithID(taskID)
	}
	if !core.CanTransition(task.Status, core.StatusPaused) {
		return core.NewFrameworkError("scheduler.Pause", "scheduler", core.ErrIllegalTransition).WithID(taskID)
	}
	task.Status = core.StatusPaused
	task.UpdatedAt = time.Now()
	if err := s.store.SaveTask(ctx, task); err != nil {
		return err
	}
	s.sink.EmitTaskEvent("task:paused", task)
	return nil
}

// Resume re-enqueues a Paused task, or admits a WaitingApproval task
// as explicitly approved: clearing RequiresApproval tells the next
// drain pass not to re-gate it.
func (s *Scheduler) Resume(ctx context.Context, taskID string) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return core.NewFrameworkError("scheduler.Resume", "scheduler", core.ErrTaskNotFound).WithID(taskID)
	}

	switch task.Status {
	case core.StatusPaused:
		s.runningMu.Lock()
		_, running := s.running[taskID]
		s.runningMu.Unlock()
		if !running {
			// Paused before a restart: no step loop exists anymore, so
			// re-admit through the queue like Start does.
			task.Status = core.StatusPending
			task.UpdatedAt = time.Now()
			if err := s.store.SaveTask(ctx, task); err != nil {
				return err
			}
			s.enqueue(task)
			s.sink.EmitTaskEvent("task:resumed", task)
			return nil
		}

		task.Status = core.StatusExecuting
		task.UpdatedAt = time.Now()
		if err := s.store.SaveTask(ctx, task); err != nil {
			return err
		}
		s.pauseMu.Lock()
		if wake, ok := s.pauseWake[taskID]; ok {
			select {
			case <-wake:
			default:
				close(wake)
			}
			s.pauseWake[taskID] = make(chan struct{})
		}
		s.pauseMu.Unlock()
		s.sink.EmitTaskEvent("task:resumed", task)
		return nil

	case core.StatusWaitingApproval:
		// The status stays WaitingApproval until drain() admits it
		// (WaitingApproval -> Executing is the only legal transition);
		// clearing RequiresApproval tells drain() not to re-gate it.
		task.RequiresApproval = false
		task.UpdatedAt = time.Now()
		if err := s.store.SaveTask(ctx, task); err != nil {
			return err
		}
		s.enqueue(task)
		s.sink.EmitTaskEvent("task:resumed", task)
		return nil

	default:
		return core.NewFrameworkError("scheduler.Resume", "scheduler", core.ErrIllegalTransition).WithID(taskID)
	}
}

// Cancel stops a task immediately if not yet started, or short-circuits
// a running one at the next suspension point.
func (s *Scheduler) Cancel(ctx context.Context, taskID string) error {
	s.runningMu.Lock()
	cancel, running := s.running[taskID]
	s.runningMu.Unlock()

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return core.NewFrameworkError("scheduler.Cancel", "scheduler", core.ErrTaskNotFound).WithID(taskID)
	}
	if task.Status.IsTerminal() {
		return core.NewFrameworkError("scheduler.Cancel", "scheduler", core.ErrIllegalTransition).WithID(taskID)
	}

	if running {
		cancel()
		s.pauseMu.Lock()
		if wake, ok := s.pauseWake[taskID]; ok {
			select {
			case <-wake:
			default:
				close(wake)
			}
		}
		s.pauseMu.Unlock()
		return nil // runStepLoop observes ctx.Done() and persists Cancelled
	}

	// Not yet started: cancel immediately and drop from the queue.
	s.queueMu.Lock()
	for i, queued := range s.queue.items {
		if queued.ID == taskID {
			heap.Remove(&s.queue.items, i)
			break
		}
	}
	s.queueMu.Unlock()

	task.Status = core.StatusCancelled
	now := time.Now()
	task.CompletedAt = &now
	task.UpdatedAt = now
	if err := s.store.SaveTask(ctx, task); err != nil {
		return err
	}
	s.sink.EmitTaskEvent("task:cancelled", task)
	return nil
}

// RunningCount reports the current size of the running set (for tests
// asserting the concurrency ceiling invariant).
func (s *Scheduler) RunningCount() int {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	return len(s.running)
}

// workflowHash derives a stable hash of the enclosing task, used as
// the outer trust-store key so a trusted action in one workflow does
// not silently authorize the same action in an unrelated one.
func workflowHash(task *core.Task) string {
	h := sha256.Sum256([]byte(task.Name + "::" + task.Description))
	return hex.EncodeToString(h[:])
}

// actionSignature derives a stable inner trust-store key from the
// concrete operation a step performs.
func actionSignature(step core.Step) string {
	switch step.Action.Kind {
	case core.ActionExecuteCommand:
		return fmt.Sprintf("exec:%s", step.Action.Command)
	case core.ActionWriteFile:
		return fmt.Sprintf("write:%s", step.Action.Path)
	case core.ActionReadFile:
		return fmt.Sprintf("read:%s", step.Action.Path)
	case core.ActionNavigate:
		return fmt.Sprintf("navigate:%s", step.Action.URL)
	default:
		return fmt.Sprintf("%s", step.Action.Kind)
	}
}
