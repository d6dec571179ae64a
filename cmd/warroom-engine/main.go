package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warstack/warroom-engine/internal/api"
	"github.com/warstack/warroom-engine/internal/config"
	"github.com/warstack/warroom-engine/internal/engine"
	"github.com/warstack/warroom-engine/internal/metrics"
	"github.com/warstack/warroom-engine/internal/oracle"
	"github.com/warstack/warroom-engine/internal/services"
	"github.com/warstack/warroom-engine/internal/store"
	"github.com/warstack/warroom-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	// Optional .env for local development; ignore absence.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting warroom-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var st store.Store
	switch cfg.Store.Driver {
	case "memory":
		st = store.NewMemoryStore()
	default:
		sqliteStore, err := store.OpenSQLite(cfg.Store.Path)
		if err != nil {
			logger.Error("failed to open store", slog.String("path", cfg.Store.Path), slog.Any("error", err))
			os.Exit(1)
		}
		st = sqliteStore
	}
	defer st.Close()

	var client oracle.Client = oracle.Disabled{}
	if cfg.Oracle.APIKey != "" {
		client = oracle.NewChatClient(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.Oracle.Model, cfg.Oracle.Timeout)
		logger.Info("oracle configured", slog.String("model", cfg.Oracle.Model))
	} else {
		logger.Warn("no oracle API key configured, running degraded")
	}

	policy := engine.PolicyFromConfig(cfg.Policy)
	warroom := services.NewWarRoomService(
		logger,
		st,
		engine.NewClassifier(logger, client),
		engine.NewCommander(logger, client, st, policy),
		engine.NewSummaryGenerator(logger, client),
		policy,
	)

	handler := api.NewHandler(logger, warroom)
	server, err := api.NewServer(cfg.Server, handler.Routes())
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("warroom-engine stopped")
}
