package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	approveWorkflowHash    string
	approveActionSignature string
)

// approveCmd pre-trusts a (workflow_hash, action_signature) pair so a
// future matching step auto-approves via the trust-store fast path.
// Resolving a live pending approval would require an RPC surface into
// a running scheduler process; trusting ahead of time through the same
// file the controller reads covers the headless case.
var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Add a (workflow-hash, action-signature) pair to the trust store",
	RunE:  runApprove,
}

func init() {
	approveCmd.Flags().StringVar(&approveWorkflowHash, "workflow-hash", "", "workflow hash to trust (required)")
	approveCmd.Flags().StringVar(&approveActionSignature, "action-signature", "", "action signature to trust (required)")
	_ = approveCmd.MarkFlagRequired("workflow-hash")
	_ = approveCmd.MarkFlagRequired("action-signature")
}

func runApprove(c *cobra.Command, args []string) error {
	ctx := c.Context()
	app, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.Trust.Trust(approveWorkflowHash, approveActionSignature); err != nil {
		return err
	}
	fmt.Printf("trusted workflow=%s action=%s\n", approveWorkflowHash, approveActionSignature)
	return nil
}
