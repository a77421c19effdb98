package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stillpointapp/stillpoint/internal/model"
	"github.com/stillpointapp/stillpoint/internal/ui"
)

var modeCmd = &cobra.Command{
	Use:   "mode [local-only|cloud-sync]",
	Short: "Show or switch the sync mode",
	Long: `Show the current sync mode, or switch it.

Switching to cloud-sync pushes every local task that has no cloud twin yet.
Switching to local-only pulls the cloud task list and overwrites the local
store with it; local tasks that were never pushed are discarded. Both
migrations are best-effort: the mode flag is persisted before the bulk
transfer, so re-run the switch if it is interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		o, err := newOrchestrator(cmd.Context(), st)
		if err != nil {
			return err
		}
		defer o.Teardown()

		if len(args) == 0 {
			fmt.Printf("%s\n", o.Status().Mode)
			return nil
		}

		newMode := model.SyncMode(args[0])
		if !newMode.Valid() {
			return fmt.Errorf("unknown sync mode %q (want %s or %s)",
				args[0], model.ModeLocalOnly, model.ModeCloudSync)
		}

		if err := o.SetSyncMode(cmd.Context(), newMode); err != nil {
			return err
		}

		status := o.Status()
		fmt.Printf("%s Mode is now %s\n", ui.RenderPass("✓"), ui.RenderAccent(string(status.Mode)))
		if status.Pending > 0 {
			fmt.Printf("  %s\n", ui.RenderWarn(
				fmt.Sprintf("%d operation(s) still queued; they will be pushed when the replica is reachable", status.Pending)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modeCmd)
}
