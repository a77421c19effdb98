package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stillpointapp/stillpoint/internal/store"
	"github.com/stillpointapp/stillpoint/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Repair legacy value encodings in the local store",
	Long: `Re-encode values written by older versions that stored plain strings
without JSON escaping. Safe to run repeatedly; already well-formed values
are left untouched.

Every command runs this pass automatically on startup, so 'migrate' is only
needed to repair a store without touching anything else.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Open without the automatic pass so the explicit run is the one
		// that reports.
		st, err := store.Open(filepath.Join(viper.GetString("data-dir"), "data.db"), newLogger("[store] "))
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.MigrateFormat(); err != nil {
			return err
		}
		fmt.Printf("%s Store format is current\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
