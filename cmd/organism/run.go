package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"organism/internal/runtime"
	"organism/internal/server"
)

// runCmd starts the full organism: HTTP surface plus the autonomous tick
// loop, under one cancellation.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the organism server and autonomous loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		engine, err := runtime.New(cfg, logger)
		if err != nil {
			return err
		}
		defer engine.Close()

		srv := server.New(engine, cfg.Server.Addr, logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return engine.Run(ctx)
		})
		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		logger.Info("organism running", zap.String("addr", cfg.Server.Addr), zap.String("db", cfg.DBPath))
		if err := g.Wait(); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

// bootstrapCmd initializes the database and seeds the resting state
// without serving.
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Initialize the database, axes, operators, and resting state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine, err := runtime.New(cfg, logger)
		if err != nil {
			return err
		}
		defer engine.Close()

		status, err := engine.Status()
		if err != nil {
			return err
		}
		logger.Info("bootstrap complete",
			zap.String("db", cfg.DBPath),
			zap.Int("axes", len(status)))
		return nil
	},
}
