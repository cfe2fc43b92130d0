package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/localfirst/agentcore/core"
	"github.com/spf13/cobra"
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Manage lifecycle hooks",
}

var hooksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered hooks",
	RunE:  runHooksList,
}

var (
	hookAddEvents   []string
	hookAddPriority int
	hookAddTimeout  time.Duration
	hookAddContinue bool
)

var hooksAddCmd = &cobra.Command{
	Use:   "add <name> <command>",
	Short: "Register a new hook",
	Args:  cobra.ExactArgs(2),
	RunE:  runHooksAdd,
}

var hooksRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Unregister a hook",
	Args:  cobra.ExactArgs(1),
	RunE:  runHooksRemove,
}

func init() {
	hooksAddCmd.Flags().StringSliceVar(&hookAddEvents, "events", nil, "comma-separated lifecycle events this hook subscribes to (required)")
	hooksAddCmd.Flags().IntVar(&hookAddPriority, "priority", 100, "lower runs earlier")
	hooksAddCmd.Flags().DurationVar(&hookAddTimeout, "timeout", 30*time.Second, "per-run timeout")
	hooksAddCmd.Flags().BoolVar(&hookAddContinue, "continue-on-error", true, "run later hooks even if this one fails")
	_ = hooksAddCmd.MarkFlagRequired("events")

	hooksCmd.AddCommand(hooksListCmd, hooksAddCmd, hooksRemoveCmd)
}

func runHooksList(c *cobra.Command, args []string) error {
	ctx := c.Context()
	app, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	hooks := app.Hooks.Hooks()
	for _, h := range hooks {
		events := make([]string, len(h.Events))
		for i, e := range h.Events {
			events[i] = string(e)
		}
		fmt.Printf("%-20s priority=%-4d enabled=%-5t events=%s\n", h.Name, h.Priority, h.Enabled, strings.Join(events, ","))
	}
	return nil
}

func runHooksAdd(c *cobra.Command, args []string) error {
	name, command := args[0], args[1]

	events := make([]core.HookEventType, len(hookAddEvents))
	for i, e := range hookAddEvents {
		events[i] = core.HookEventType(e)
	}

	ctx := c.Context()
	app, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	h := &core.Hook{
		Name:            name,
		Command:         command,
		Events:          events,
		Priority:        hookAddPriority,
		Timeout:         hookAddTimeout,
		ContinueOnError: hookAddContinue,
		Enabled:         true,
	}
	if err := app.Hooks.AddHook(ctx, h); err != nil {
		return err
	}
	fmt.Printf("added hook %s\n", name)
	return nil
}

func runHooksRemove(c *cobra.Command, args []string) error {
	ctx := c.Context()
	app, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.Hooks.RemoveHook(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("removed hook %s\n", args[0])
	return nil
}
