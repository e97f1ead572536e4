package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Versifine/mcclient/internal/ping"
)

func pingCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ping [host[:port]]",
		Short: "Query a server's status like the multiplayer server list",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			release, err := initLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer release()

			host, port := cfg.Server.Host, cfg.Server.Port
			if len(args) == 1 {
				if host, port, err = splitHostPort(args[0], port); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			resp, err := ping.Ping(ctx, ping.Options{
				Host:         host,
				Port:         port,
				Version:      cfg.Client.Version,
				Dialer:       newDialer(cfg.Server),
				CloseTimeout: timeout,
			})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(struct {
				*ping.Response
				LatencyMS int64 `json:"latency_ms"`
			}{resp, resp.Latency.Milliseconds()}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", ping.DefaultCloseTimeout, "overall timeout of the status query")

	return cmd
}

func splitHostPort(arg string, defaultPort int) (string, int, error) {
	host, portStr, err := net.SplitHostPort(arg)
	if err != nil {
		// no port given
		return arg, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}
