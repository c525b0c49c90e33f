package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/labflow"
	httpAdapter "github.com/aretw0/labflow/pkg/adapters/http"
	"github.com/aretw0/labflow/pkg/observability"
	"github.com/aretw0/labflow/pkg/persistence/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Serves the lab as a JSON API over HTTP, with Prometheus metrics on /metrics and
a server-sent event stream of state changes on /events.`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetString("port")

		metrics, err := observability.NewMetrics(prometheus.NewRegistry())
		if err != nil {
			fmt.Printf("Error registering metrics: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// The stream manager must exist before the engine so its hooks can be installed.
		cfg := loadConfig()
		logger, err := cfg.logger()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		streams := httpAdapter.NewStreamManager(logger)

		s, err := openSession(ctx,
			labflow.WithStoreMiddleware(middleware.Timing(metrics.ObserveStore)),
			labflow.WithLifecycleHooks(observability.Combine(
				metrics.Hooks(),
				observability.AuditHooks(logger),
				streams.Hooks(),
			)),
		)
		if err != nil {
			fmt.Printf("Error opening lab: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = s.close() }()

		api := httpAdapter.NewServer(s.engine, s.lab,
			httpAdapter.WithRunner(s.runner),
			httpAdapter.WithStreams(streams),
			httpAdapter.WithAudit(s.audit),
			httpAdapter.WithLogger(logger),
			httpAdapter.WithVersion(labflow.Version),
		)
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/", api.Routes())

		srv := &http.Server{
			Addr:              ":" + port,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("Starting labflow server on %s (store: %s)\n", srv.Addr, s.cfg.Store)
			serverErrors <- srv.ListenAndServe()
		}()

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				fmt.Printf("Server error: %v\n", err)
				_ = s.close()
				os.Exit(1)
			}

		case <-ctx.Done():
			fmt.Println("\nStart shutdown...")

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			// Asking listener to shut down and shed load.
			if err := srv.Shutdown(shutdownCtx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			fmt.Println("labflow server stopped gracefully")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
}
