package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dray-io/brokerstats/internal/logging"
)

func newRunCmd() *cobra.Command {
	var (
		metricsAddr string
		instanceID  string
		disabled    bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the statistics daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Observability.MetricsAddr = metricsAddr
			}
			if disabled {
				cfg.Stats.Enabled = false
			}
			if instanceID == "" {
				instanceID = uuid.New().String()
			}

			logger := logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)

			d, err := NewDaemon(DaemonOptions{
				Config:     cfg,
				Logger:     logger,
				InstanceID: instanceID,
				Version:    version,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return d.Start(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("initiating graceful shutdown")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return d.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("daemon shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Override metrics and query endpoint address (e.g., :9090)")
	cmd.Flags().StringVar(&instanceID, "instance-id", "", "Override instance ID (default: auto-generated UUID)")
	cmd.Flags().BoolVar(&disabled, "no-report", false, "Start with periodic reporting disabled")
	return cmd
}
