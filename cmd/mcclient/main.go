package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Versifine/mcclient/internal/config"
	"github.com/Versifine/mcclient/internal/logger"
	"github.com/Versifine/mcclient/internal/transport"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	rootCmd := &cobra.Command{
		Use:           "mcclient",
		Short:         "Minecraft protocol client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "path to the YAML config file")

	rootCmd.AddCommand(
		connectCmd(),
		pingCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the --config file. A missing file at the default path
// falls back to the built-in defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if os.IsNotExist(err) && !cmd.Flags().Changed("config") {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// initLogger sets the default logger. The returned func releases the log
// file, if any.
func initLogger(cfg config.LoggingConfig) (func(), error) {
	var out io.Writer = os.Stdout
	release := func() {}
	if cfg.File != "" {
		f, err := logger.OpenFile(cfg.File)
		if err != nil {
			return nil, err
		}
		out = f
		release = func() { _ = f.Close() }
	}
	logger.Init(logger.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: out,
	})
	return release, nil
}

func newDialer(cfg config.ServerConfig) transport.Dialer {
	if cfg.Transport == "websocket" {
		slog.Debug("Using websocket transport", "url", cfg.WebSocketURL)
		return &transport.WebSocketDialer{URL: cfg.WebSocketURL}
	}
	return &transport.TCPDialer{SRV: cfg.SRV}
}
