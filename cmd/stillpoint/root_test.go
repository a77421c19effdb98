package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newTestCommand(t *testing.T) *cobra.Command {
	t.Helper()
	viper.Reset()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("data-dir", "", "")
	cmd.Flags().String("remote-url", "", "")
	cmd.Flags().String("user", "", "")
	cmd.Flags().String("log-file", "", "")
	return cmd
}

func TestInitConfigBindsFlags(t *testing.T) {
	cmd := newTestCommand(t)
	dir := t.TempDir()
	if err := cmd.Flags().Set("data-dir", dir); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := cmd.Flags().Set("remote-url", "http://localhost:9999"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := initConfig(cmd); err != nil {
		t.Fatalf("initConfig failed: %v", err)
	}

	if got := viper.GetString("data-dir"); got != dir {
		t.Errorf("data-dir = %q, want %q", got, dir)
	}
	if got := viper.GetString("remote-url"); got != "http://localhost:9999" {
		t.Errorf("remote-url = %q, want the flag value", got)
	}
}

func TestInitConfigEnvOverride(t *testing.T) {
	cmd := newTestCommand(t)
	if err := cmd.Flags().Set("data-dir", t.TempDir()); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	t.Setenv("STILLPOINT_USER", "env-user")

	if err := initConfig(cmd); err != nil {
		t.Fatalf("initConfig failed: %v", err)
	}

	if got := viper.GetString("user"); got != "env-user" {
		t.Errorf("user = %q, want the environment value", got)
	}
}

func TestInitConfigReadsConfigFile(t *testing.T) {
	cmd := newTestCommand(t)
	dir := t.TempDir()
	config := "remote-url: http://config.example\nuser: config-user\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	if err := cmd.Flags().Set("data-dir", dir); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := initConfig(cmd); err != nil {
		t.Fatalf("initConfig failed: %v", err)
	}

	if got := viper.GetString("remote-url"); got != "http://config.example" {
		t.Errorf("remote-url = %q, want the config file value", got)
	}
	if got := viper.GetString("user"); got != "config-user" {
		t.Errorf("user = %q, want the config file value", got)
	}
}

func TestInitConfigMissingConfigFile(t *testing.T) {
	cmd := newTestCommand(t)
	if err := cmd.Flags().Set("data-dir", t.TempDir()); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := initConfig(cmd); err != nil {
		t.Errorf("a missing config file must not be an error, got %v", err)
	}
}

func TestDefaultDataDir(t *testing.T) {
	dir := defaultDataDir()
	if dir == "" {
		t.Fatal("expected a non-empty default data dir")
	}
	if !strings.HasSuffix(dir, ".stillpoint") {
		t.Errorf("default data dir = %q, want a .stillpoint suffix", dir)
	}
}
