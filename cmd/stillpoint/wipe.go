package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stillpointapp/stillpoint/internal/ui"
)

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Irreversibly delete all local data",
	Long: `Delete every stored key: tasks, settings, sessions, identity, and the
pending sync queue. This cannot be undone and requires a two-step
confirmation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sum, err := st.DataSummary()
		if err != nil {
			return err
		}

		reader := bufio.NewReader(cmd.InOrStdin())

		fmt.Printf("%s This will delete %d task(s) and %d session(s). Continue? [y/N] ",
			ui.RenderWarn("⚠"), sum.Tasks, sum.Sessions)
		answer, _ := reader.ReadString('\n')
		if strings.TrimSpace(strings.ToLower(answer)) != "y" {
			fmt.Println("Aborted")
			return nil
		}

		fmt.Printf("%s Type 'wipe' to confirm: ", ui.RenderWarn("⚠"))
		answer, _ = reader.ReadString('\n')
		if strings.TrimSpace(answer) != "wipe" {
			fmt.Println("Aborted")
			return nil
		}

		if err := st.ClearAll(); err != nil {
			return err
		}
		fmt.Printf("%s All local data deleted\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(wipeCmd)
}
