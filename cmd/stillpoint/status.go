package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stillpointapp/stillpoint/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state and storage summary",
	Long: `Display the current sync mode, connectivity intent, queued remote
operations, and a summary of stored data.

"connected" reflects mode and the last observed connectivity only; it does
not probe the remote. Use 'stillpoint probe' for a real round trip.`,
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

		status := o.Status()
		connected := ui.RenderWarn("no")
		if status.Connected {
			connected = ui.RenderPass("yes")
		}
		fmt.Printf("Mode:      %s\n", ui.RenderAccent(string(status.Mode)))
		fmt.Printf("Online:    %v\n", status.Online)
		fmt.Printf("Connected: %s\n", connected)
		fmt.Printf("Pending:   %d queued remote operation(s)\n", status.Pending)

		sum, err := st.DataSummary()
		if err != nil {
			return err
		}
		fmt.Printf("\nTasks:     %d (%d completed)\n", sum.Tasks, sum.CompletedTasks)
		fmt.Printf("Sessions:  %d\n", sum.Sessions)
		fmt.Printf("Size:      ~%d bytes\n", sum.ApproxBytes)

		last, err := st.LastBackup()
		if err != nil {
			return err
		}
		if !last.IsZero() {
			fmt.Printf("Backup:    %s\n", last.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe the cloud replica with one real round trip",
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

		ok, err := o.TestCloudConnection(cmd.Context())
		if err != nil || !ok {
			fmt.Printf("%s Cloud replica unreachable\n", ui.RenderFail("✗"))
			if err != nil {
				fmt.Printf("  %s\n", ui.RenderDim(err.Error()))
			}
			return nil
		}
		fmt.Printf("%s Cloud replica reachable\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, probeCmd)
}
