package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read and write persisted key/value settings",
}

var settingsEncrypted bool

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a setting, optionally encrypted at rest",
	Args:  cobra.ExactArgs(2),
	RunE:  runSettingsSet,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read a setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsGet,
}

func init() {
	settingsSetCmd.Flags().BoolVar(&settingsEncrypted, "encrypted", false, "encrypt the value at rest with AES-256-GCM")
	settingsCmd.AddCommand(settingsSetCmd, settingsGetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsSet(c *cobra.Command, args []string) error {
	ctx := c.Context()
	app, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.Settings.Set(ctx, args[0], args[1], settingsEncrypted); err != nil {
		return err
	}
	fmt.Printf("set %s\n", args[0])
	return nil
}

func runSettingsGet(c *cobra.Command, args []string) error {
	ctx := c.Context()
	app, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	value, ok, err := app.Settings.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("setting %q not found", args[0])
	}
	fmt.Println(value)
	return nil
}
