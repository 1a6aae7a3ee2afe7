// Command handshake runs the model registry server and its operator tooling.
package main

import (
	"log/slog"
	"os"

	"github.com/layer-3/handshake/config"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "handshake",
		Short:         "Wallet-authenticated registry for AI model artifacts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (HANDSHAKE_* env vars override it)")

	cmd.AddCommand(newServeCmd(&cfgFile))
	cmd.AddCommand(newHashCmd())
	cmd.AddCommand(newUploadCmd())

	return cmd
}

// newLogger builds the process logger: JSON in production, text otherwise
func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.Log.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Production() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
