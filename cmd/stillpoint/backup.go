package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stillpointapp/stillpoint/internal/backup"
	"github.com/stillpointapp/stillpoint/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:   "export [path]",
	Short: "Export a full-state snapshot",
	Long: `Write every collection (tasks, settings, sessions) to a single JSON
snapshot document. Without a path, a timestamped file is written into the
data directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			name := fmt.Sprintf("stillpoint-%s.json", time.Now().Format("20060102-150405"))
			path = filepath.Join(viper.GetString("data-dir"), "backups", name)
		}

		snap, err := backup.Export(st, path)
		if err != nil {
			return err
		}

		fmt.Printf("%s Exported %d task(s), %d session(s) to %s\n",
			ui.RenderPass("✓"), len(snap.Tasks),
			len(snap.MeditationSessions)+len(snap.FocusSessions), path)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import a snapshot, overwriting local collections",
	Long: `Restore a snapshot document. Each collection present in the snapshot
overwrites its local counterpart entirely; collections absent from the
snapshot are left untouched. There is no merging.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := backup.Import(st, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s Imported %d task(s), %d session(s)\n",
			ui.RenderPass("✓"), result.Tasks,
			result.MeditationSessions+result.FocusSessions)
		if result.SettingsImported {
			fmt.Printf("  %s\n", ui.RenderDim("settings restored"))
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and import dropped snapshots",
	Long: `Watch a drop directory and automatically import snapshot files that
appear in it. Useful for file-based handoff between devices: export on one
machine, drop the file here on another.

Runs until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		dir := filepath.Join(viper.GetString("data-dir"), "inbox")
		if len(args) == 1 {
			dir = args[0]
		}

		w, err := backup.NewWatcher(st, dir, &backup.WatcherConfig{
			DebounceInterval: 500 * time.Millisecond,
			Logger:           newLogger("[backup] "),
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s Watching %s for snapshots (Ctrl-C to stop)\n", ui.RenderAccent("…"), dir)
		return w.Start(cmd.Context())
	},
}

func init() {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot export, import, and drop-directory watch",
	}
	backupCmd.AddCommand(exportCmd, importCmd, watchCmd)
	rootCmd.AddCommand(backupCmd)
}
