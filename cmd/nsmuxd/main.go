// nsmuxd serves namespace-multiplexed websocket sessions.
// Usage: go run ./cmd/nsmuxd --config configs/nsmuxd.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/nsmux/internal/audit"
	"github.com/rickgao/nsmux/internal/config"
	"github.com/rickgao/nsmux/internal/database"
	"github.com/rickgao/nsmux/internal/handlers"
	"github.com/rickgao/nsmux/internal/metrics"
	"github.com/rickgao/nsmux/internal/namespace"
	"github.com/rickgao/nsmux/internal/observe"
	"github.com/rickgao/nsmux/internal/server"
	"github.com/rickgao/nsmux/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty = defaults)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting nsmuxd",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("nsmuxd failed", "error", err)
		os.Exit(1)
	}

	logger.Info("nsmuxd stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadAndValidate(path)
	}

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Namespaces
	bindings := namespace.NewBindings()
	if err := handlers.Register(bindings); err != nil {
		return err
	}
	table := bindings.Table()

	sinks := []observe.Sink{observe.NewLogSink(logger)}
	opts := serverOptions(cfg)

	if cfg.Metrics.IsEnabled() {
		sinks = append(sinks, metrics.NewSink())
		opts.MetricsHandler = metrics.Handler()
	}

	// Optional audit log
	var auditWriter *audit.Writer
	if cfg.Audit.Enabled {
		pool, err := database.ConnectWithRetry(ctx, cfg.Audit.Database, 5, time.Second, 30*time.Second, logger)
		if err != nil {
			return fmt.Errorf("connect audit database: %w", err)
		}
		defer pool.Close()

		if err := audit.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		auditWriter = audit.NewWriter(audit.Config{
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: cfg.Audit.FlushInterval,
			BufferSize:    cfg.Audit.BufferSize,
		}, pool, logger.With("component", "audit"))
		if err := auditWriter.Start(ctx); err != nil {
			return fmt.Errorf("start audit writer: %w", err)
		}

		sinks = append(sinks, auditWriter)
		opts.Checks = map[string]server.HealthChecker{"audit_db": pool}
	}

	srv := server.New(opts, table, observe.Multi(sinks...), logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv,
		ReadHeaderTimeout: cfg.Server.HandshakeTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening",
			"addr", cfg.Server.Addr,
			"path", cfg.Server.Path,
			"namespaces", table.Names(),
		)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		// Hijacked websocket connections are not tracked by http.Server.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("sessions did not stop in time", "error", err)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", "error", err)
		}
		if auditWriter != nil {
			if err := auditWriter.Stop(shutdownCtx); err != nil {
				logger.Warn("audit writer shutdown", "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}
