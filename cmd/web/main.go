// cmd/web/main.go
//
// HotBoxHair – command-line entry point.
//
// Commands
// --------
//
//	hotbox            serve the site (same as "hotbox serve")
//	hotbox serve      serve the site
//	hotbox check      load and validate configuration and form definitions
//	hotbox migrate    apply every component's schema and exit
//
// Environment
// -----------
//
// Env vars are loaded from the host-wide env file when present, else from
// ./.env.  HOTBOX_* variables override conf/global.yaml; VAULT_ADDR enables
// "vault:" references in configuration values.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hotboxhair/site/internal/config"
	"github.com/hotboxhair/site/internal/vault"

	_ "github.com/hotboxhair/site/components/contact"
	_ "github.com/hotboxhair/site/components/donate"
	_ "github.com/hotboxhair/site/components/track"
)

const serverEnvPath = "/usr/local/etc/hotbox/global.env"

var rootFlag string

var rootCmd = &cobra.Command{
	Use:          "hotbox",
	Short:        "HotBoxHair donation and contact site",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the site until SIGINT or SIGTERM",
	RunE:  runServe,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and form definitions",
	RunE:  runCheck,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply component schemas to the configured database",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "site root (defaults to HOTBOX_ROOT or the directory holding conf/)")
	rootCmd.AddCommand(serveCmd, checkCmd, migrateCmd)
}

func main() {
	loadEnv()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEnv prefers the host-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadConfig resolves the site root and loads configuration, resolving
// vault references when Vault is configured.
func loadConfig(ctx context.Context) (*config.Config, error) {
	var sr config.SecretResolver
	if vault.Enabled() {
		vc, err := vault.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("vault: %w", err)
		}
		sr = vc
	}

	root := rootFlag
	if root == "" {
		root = config.Root()
	}
	return config.LoadFrom(ctx, root, sr)
}
