package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/stillpointapp/stillpoint/internal/orchestrator"
	"github.com/stillpointapp/stillpoint/internal/remote"
	"github.com/stillpointapp/stillpoint/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "stillpoint",
	Short: "Local-first task and wellness data store",
	Long: `stillpoint keeps your tasks, settings, and session history in an
authoritative on-device store, optionally mirrored to a cloud replica.

Writes always commit locally first; cloud sync is best-effort and queued
through a durable outbox, so everything keeps working offline.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (default ~/.stillpoint)")
	rootCmd.PersistentFlags().String("remote-url", "", "base URL of the cloud replica")
	rootCmd.PersistentFlags().String("user", "", "user identity for cloud sync")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to this file with rotation")
}

// initConfig wires flags, environment, and an optional config file through
// viper. Environment variables use the STILLPOINT_ prefix.
func initConfig(cmd *cobra.Command) error {
	viper.SetDefault("data-dir", defaultDataDir())

	viper.SetEnvPrefix("STILLPOINT")
	viper.AutomaticEnv()

	for _, key := range []string{"data-dir", "remote-url", "user", "log-file"} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(key)); err != nil {
			return err
		}
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(viper.GetString("data-dir"))
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stillpoint"
	}
	return filepath.Join(home, ".stillpoint")
}

// newLogger builds the application logger, rotating through lumberjack
// when a log file is configured.
func newLogger(prefix string) *log.Logger {
	var w io.Writer = os.Stderr
	if path := viper.GetString("log-file"); path != "" {
		w = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	return log.New(w, prefix, log.LstdFlags)
}

// openStore opens the local database and runs the one-time format
// migration pass before any other access.
func openStore() (*store.Store, error) {
	dataDir := viper.GetString("data-dir")
	st, err := store.Open(filepath.Join(dataDir, "data.db"), newLogger("[store] "))
	if err != nil {
		return nil, err
	}
	if err := st.MigrateFormat(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// newOrchestrator builds the sync orchestrator over the store, attaching a
// remote client when one is configured, and initializes the session.
func newOrchestrator(ctx context.Context, st *store.Store) (*orchestrator.Orchestrator, error) {
	var collab orchestrator.Collaborator
	if url := viper.GetString("remote-url"); url != "" {
		collab = remote.NewClient(url, nil, newLogger("[remote] "))
	}

	o, err := orchestrator.New(st, collab, newLogger("[sync] "))
	if err != nil {
		return nil, err
	}

	user := viper.GetString("user")
	if user == "" {
		stored, err := st.UserID()
		if err != nil {
			o.Teardown()
			return nil, err
		}
		user = stored
	}
	if user == "" {
		user = "local"
	}

	if err := o.Initialize(ctx, user); err != nil {
		o.Teardown()
		return nil, err
	}
	return o, nil
}
