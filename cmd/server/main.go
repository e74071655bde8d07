// Package main serves the settlement engine's read-only HTTP surface:
// health, Prometheus metrics, status, and lookups of claims, escrows,
// claim tokens, pairings and emitted events.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nomisma-settlement/internal/app"
	"nomisma-settlement/internal/config"
	"nomisma-settlement/internal/ledger"
	"nomisma-settlement/internal/logger"
	"nomisma-settlement/internal/observability"
	"nomisma-settlement/internal/scheduler"
	"nomisma-settlement/internal/storage"
	"nomisma-settlement/internal/verification"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	envOnly := flag.Bool("env-only", false, "Read configuration from NSC_* environment variables only")
	httpAddr := flag.String("http-addr", "", "HTTP listen address (overrides server.http_addr)")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envOnly)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func run(cfg config.Config, log *zap.Logger) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := app.Build(ctx, cfg, log, app.Options{})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	a := &api{
		orch:    engine.Orchestrator,
		backend: cfg.Storage.Backend,
		started: time.Now(),
		log:     log.Named("http"),
	}

	if cfg.Audit.Enabled {
		auditor := verification.NewAuditor(verification.AuditorOptions{
			Runner:        engine.Runner,
			LedgerFactory: func(tx storage.Tx) ledger.Host { return ledger.NewStoreLedger(tx.Ledger()) },
		})
		a.audit = newAuditJob(auditor, engine.Metrics, log.Named("audit"))
		a.audit.Run(ctx)

		sched := scheduler.New(ctx, log.Named("scheduler"))
		if _, err := sched.Add("audit", cfg.Audit.Schedule, a.audit.Run); err != nil {
			return fmt.Errorf("schedule audit: %w", err)
		}
		sched.Start()
		defer sched.Stop()
		log.Info("invariant audit scheduled", zap.String("schedule", cfg.Audit.Schedule))
	}

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           a.routes(observability.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
