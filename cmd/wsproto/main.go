// Command wsproto runs a WebSocket echo server or an interactive client.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/momentics/wsproto/internal/config"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wsproto",
		Short: "RFC 6455 WebSocket server and client",
		Long: `wsproto speaks the RFC 6455 WebSocket protocol.

  serve  runs a reactor-driven echo server with a metrics endpoint
  dial   connects to a server and exchanges stdin lines as messages`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (.toml, .yaml or .yml)")

	rootCmd.AddCommand(
		serveCmd(),
		dialCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the --config file and installs the configured logger as
// the slog default.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(cfg.Log.NewLogger(os.Stderr))
	return cfg, nil
}
