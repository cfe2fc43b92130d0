package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/localfirst/agentcore/core"
	"github.com/spf13/cobra"
)

var (
	submitName        string
	submitDescription string
	submitPriority    string
	submitAutoApprove bool
	submitWait        bool
	submitTimeout     time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a task and run the scheduler until it finishes (or --timeout elapses)",
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitName, "name", "", "task name (required)")
	submitCmd.Flags().StringVar(&submitDescription, "description", "", "free-text task description passed to the planner (required)")
	submitCmd.Flags().StringVar(&submitPriority, "priority", "normal", "low, normal, high, or critical")
	submitCmd.Flags().BoolVar(&submitAutoApprove, "auto-approve", false, "skip approval for every step of this task")
	submitCmd.Flags().BoolVar(&submitWait, "wait", true, "block until the task reaches a terminal state")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 10*time.Minute, "max time to wait with --wait")
	_ = submitCmd.MarkFlagRequired("name")
	_ = submitCmd.MarkFlagRequired("description")
}

func parsePriority(s string) (core.Priority, error) {
	switch s {
	case "low":
		return core.PriorityLow, nil
	case "normal":
		return core.PriorityNormal, nil
	case "high":
		return core.PriorityHigh, nil
	case "critical":
		return core.PriorityCritical, nil
	default:
		return 0, fmt.Errorf("unknown priority %q (want low, normal, high, critical)", s)
	}
}

func runSubmit(c *cobra.Command, args []string) error {
	priority, err := parsePriority(submitPriority)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer app.Scheduler.Stop()

	taskID, err := app.Scheduler.Submit(ctx, submitName, submitDescription, priority, submitAutoApprove)
	if err != nil {
		return err
	}
	fmt.Println(taskID)

	if !submitWait {
		return nil
	}

	deadline := time.Now().Add(submitTimeout)
	for time.Now().Before(deadline) {
		task, err := app.TaskStore.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task != nil && task.Status.IsTerminal() {
			fmt.Printf("status=%s progress=%.2f\n", task.Status, task.Progress)
			if task.Status == core.StatusFailed {
				return fmt.Errorf("task failed: %s", task.FailureReason)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return fmt.Errorf("timed out after %s waiting for task %s", submitTimeout, taskID)
}
