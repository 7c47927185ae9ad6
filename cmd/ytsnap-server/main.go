package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ytsnap/ytsnap/internal/api"
	"github.com/ytsnap/ytsnap/internal/api/handler"
	"github.com/ytsnap/ytsnap/internal/config"
	"github.com/ytsnap/ytsnap/internal/downloader"
	"github.com/ytsnap/ytsnap/internal/history"
	"github.com/ytsnap/ytsnap/internal/metadata"
	"github.com/ytsnap/ytsnap/internal/orchestrator"
	"github.com/ytsnap/ytsnap/internal/proxy"
	"github.com/ytsnap/ytsnap/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ytsnap-server %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting ytsnap-server",
		"version", Version,
		"build_time", BuildTime,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Server.APIKey == "" {
		logger.Error("API_KEY must be set for the server binary")
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Storage.OutputDir, 0755); err != nil {
		logger.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}

	// Proxy pool, optionally seeded from a proxy file.
	pool, err := buildPool(cfg, logger)
	if err != nil {
		logger.Error("failed to load proxies", "error", err)
		os.Exit(1)
	}

	// Download history, optional.
	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.Open(cfg.History.Path, logger)
		if err != nil {
			logger.Error("failed to open history database", "error", err)
			os.Exit(1)
		}
		defer hist.Close()
	}

	// Wire the download pipeline.
	client := metadata.NewClient(metadata.Config{
		Timeout:           cfg.Download.RequestTimeout,
		RequestsPerSecond: 2,
	}, logger)
	worker := downloader.NewWorker(client, pool, cfg.Download, logger)
	orch := orchestrator.New(client, worker, hist, cfg.Worker, logger)
	runs := service.NewRunService(orch, cfg.Storage, logger)

	router := api.NewRouter(
		handler.NewDownloadHandler(runs, logger),
		handler.NewHistoryHandler(hist, logger),
		handler.NewHealthHandler(runs),
		cfg.Server.APIKey,
	)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	// Stop runs; interrupted videos stay pending in their state files.
	if err := runs.Shutdown(ctx); err != nil {
		logger.Error("run shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

func buildPool(cfg *config.Config, logger *slog.Logger) (*proxy.Pool, error) {
	opts := proxy.Options{
		FailureThreshold: cfg.Proxy.FailureThreshold,
		CooldownBase:     cfg.Proxy.CooldownBase,
		CooldownMax:      cfg.Proxy.CooldownMax,
	}
	if cfg.Proxy.File == "" {
		return proxy.NewPool(nil, opts, logger), nil
	}

	configs, err := proxy.ParseFile(cfg.Proxy.File)
	if err != nil {
		return nil, err
	}
	pool := proxy.NewPool(configs, opts, logger)
	logger.Info("proxy pool loaded", "proxies", pool.Size(), "file", cfg.Proxy.File)

	if cfg.Proxy.HealthCheck {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		pool.HealthCheck(ctx, proxy.HealthCheckOptions{
			URL:     cfg.Proxy.HealthCheckURL,
			Timeout: cfg.Proxy.HealthCheckTimeout,
		})
	}
	return pool, nil
}
