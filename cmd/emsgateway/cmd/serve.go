package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/auth"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/gateway"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/server"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/telemetry"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/tenant"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Compose the subgraphs and start the gateway",
	Long: `Waits for every configured subgraph to answer introspection, composes their
schemas and only then starts listening. A subgraph that never becomes ready, or a
composition conflict, aborts startup with a non-zero exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownTelemetry, err := telemetry.Init(ctx, cfg.Observability, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", zap.Error(err))
			}
		}()

		serverMetrics, err := telemetry.NewServerMetrics()
		if err != nil {
			return fmt.Errorf("failed to create server metrics: %w", err)
		}
		dispatchMetrics, err := telemetry.NewDispatchMetrics()
		if err != nil {
			return fmt.Errorf("failed to create dispatch metrics: %w", err)
		}
		authMetrics, err := telemetry.NewAuthMetrics()
		if err != nil {
			return fmt.Errorf("failed to create auth metrics: %w", err)
		}
		schemaMetrics, err := telemetry.NewSchemaMetrics()
		if err != nil {
			return fmt.Errorf("failed to create schema metrics: %w", err)
		}

		verifier, err := auth.NewVerifier(cfg.Auth)
		if err != nil {
			return fmt.Errorf("failed to configure token verification: %w", err)
		}

		engine, err := gateway.Bootstrap(ctx, cfg, gateway.Dependencies{
			Logger:          logger,
			SchemaMetrics:   schemaMetrics,
			DispatchMetrics: dispatchMetrics,
		})
		if err != nil {
			logger.Error("gateway startup failed", zap.Error(err))
			return err
		}

		router := server.NewRouter(server.Options{
			Engine:  engine,
			Tenants: tenant.NewBuilder(verifier, logger, authMetrics),
			Config:  cfg,
			Logger:  logger,
			Metrics: serverMetrics,
		})

		srv := server.NewHTTPServer(cfg.ServerAddr, router)
		return server.ListenAndServe(ctx, srv, logger)
	},
}
