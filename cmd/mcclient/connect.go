package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Versifine/mcclient/internal/auth"
	"github.com/Versifine/mcclient/internal/client"
	"github.com/Versifine/mcclient/internal/config"
	"github.com/Versifine/mcclient/internal/metrics"
)

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Log into the configured server and stay connected",
		Args:  cobra.NoArgs,
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

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runClient(ctx, cfg)
		},
	}
}

func runClient(ctx context.Context, cfg *config.Config) error {
	opts := []client.Option{
		client.WithDialer(newDialer(cfg.Server)),
		client.WithLogger(slog.Default()),
	}
	if cfg.Auth.AccessToken != "" {
		opts = append(opts, client.WithJoiner(auth.NewSessionServer(cfg.Auth.SessionServer)))
	}
	if cfg.Metrics.Addr != "" {
		collector := metrics.New("")
		opts = append(opts, client.WithObserver(collector))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: collector.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			slog.Info("Serving metrics", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	c := client.New(client.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		Version:      cfg.Client.Version,
		Username:     cfg.Client.Username,
		AccessToken:  cfg.Auth.AccessToken,
		ProfileID:    cfg.ProfileUUID(),
		KeepAlive:    cfg.Client.KeepAlive,
		CheckTimeout: cfg.Client.CheckTimeout,
		CloseTimeout: cfg.Client.CloseTimeout,
		HideErrors:   cfg.Client.HideErrors,
	}, opts...)

	slog.Info("Connecting", "host", cfg.Server.Host, "port", cfg.Server.Port, "username", cfg.Client.Username)
	reason, err := c.Run(ctx)
	if err != nil {
		return err
	}
	slog.Info("Session ended", "reason", reason)
	return nil
}
