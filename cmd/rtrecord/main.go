// rtrecord keeps a realtime connection open and archives every message and
// lifecycle event into PostgreSQL.
//
// Usage: go run ./cmd/rtrecord --config configs/client.example.yaml
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

	"github.com/rickgao/realtime-client/internal/archive"
	"github.com/rickgao/realtime-client/internal/auth"
	"github.com/rickgao/realtime-client/internal/config"
	"github.com/rickgao/realtime-client/internal/connection"
	"github.com/rickgao/realtime-client/internal/logging"
	"github.com/rickgao/realtime-client/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/client.example.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("rtrecord", version.String())
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("rtrecord failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateArchive(); err != nil {
		return err
	}

	logger := logging.FromConfig(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	logger.Info("starting rtrecord",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("connecting to database",
		"host", cfg.Archive.Database.Host,
		"port", cfg.Archive.Database.Port,
		"database", cfg.Archive.Database.Name,
	)
	pool, err := archive.Connect(ctx, cfg.Archive.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := archive.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	logger.Info("database connected")

	mcfg := connection.ManagerConfigFrom(*cfg)
	if cfg.Auth.TokenURL != "" {
		provider := auth.NewHTTPProvider(auth.HTTPConfigFrom(cfg.Auth), nil, logger)
		if err := provider.Start(ctx); err != nil {
			return err
		}
		defer stopWithTimeout(provider.Stop)
		mcfg.Credentials = provider
	}

	mgr := connection.NewManager(mcfg, nil, logger)

	// The recorder outlives ctx so it can archive the shutdown events; it
	// stops when the manager closes its watcher.
	recorder := archive.NewRecorder(
		archive.RecorderConfigFrom(cfg.Archive),
		mgr.Watch(cfg.Archive.BufferSize).C,
		pool,
		logger,
	)
	if err := recorder.Start(context.Background()); err != nil {
		return err
	}

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start connection manager: %w", err)
	}

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Archive.HealthPort),
		Handler:           newHealthHandler(pool, mgr, recorder),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Archive.HealthPort)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	logger.Info("rtrecord running",
		"url", cfg.Server.URL,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Archive.HealthPort),
	)

	runErr := g.Wait()

	logger.Info("shutting down...")
	if err := stopWithTimeout(mgr.Stop); err != nil {
		logger.Warn("connection manager stop", "error", err)
	}
	if err := stopWithTimeout(recorder.Stop); err != nil {
		logger.Warn("archive recorder stop", "error", err)
	}

	stats := recorder.Stats()
	logger.Info("rtrecord stopped",
		"messages", stats.Messages,
		"events", stats.Events,
		"inserted", stats.Inserts,
		"lost", stats.Lost,
	)
	return runErr
}

func stopWithTimeout(stop func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return stop(ctx)
}
