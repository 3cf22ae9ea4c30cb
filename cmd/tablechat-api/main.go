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

	"github.com/tablechat/tablechat/internal/api"
	"github.com/tablechat/tablechat/internal/auth"
	chatpostgres "github.com/tablechat/tablechat/internal/chat/postgres"
	"github.com/tablechat/tablechat/internal/completion"
	"github.com/tablechat/tablechat/internal/config"
	"github.com/tablechat/tablechat/internal/export"
	"github.com/tablechat/tablechat/internal/observability"
	"github.com/tablechat/tablechat/internal/pipeline"
	"github.com/tablechat/tablechat/internal/prompt"
	s3store "github.com/tablechat/tablechat/internal/storage/s3"
	"github.com/tablechat/tablechat/internal/warehouse"
	warehouseduckdb "github.com/tablechat/tablechat/internal/warehouse/duckdb"
	warehousepostgres "github.com/tablechat/tablechat/internal/warehouse/postgres"
)

func main() {
	cfg, err := config.LoadFromEnv("tablechat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	chatDB, err := chatpostgres.Open(context.Background(), chatpostgres.DBConfig{
		DSN:             cfg.ChatStore.DSN,
		MaxOpenConns:    cfg.ChatStore.MaxOpenConns,
		MaxIdleConns:    cfg.ChatStore.MaxIdleConns,
		ConnMaxIdleTime: cfg.ChatStore.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ChatStore.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open chat store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = chatDB.Close() }()
	chatRepo := chatpostgres.NewRepository(chatDB)

	var engine warehouse.Engine
	switch cfg.Warehouse.Driver {
	case "duckdb":
		duckEngine, err := warehouseduckdb.Open(context.Background(), cfg.Warehouse)
		if err != nil {
			logger.Error("failed to open duckdb warehouse", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = duckEngine.Close() }()
		engine = duckEngine
	default:
		pgEngine, err := warehousepostgres.Open(context.Background(), cfg.Warehouse)
		if err != nil {
			logger.Error("failed to open postgres warehouse", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = pgEngine.Close() }()
		engine = pgEngine
	}

	gateway, err := completion.NewOpenAIGateway(cfg.Completion)
	if err != nil {
		logger.Error("failed to initialize completion gateway", slog.Any("error", err))
		os.Exit(1)
	}

	orchestrator := pipeline.NewOrchestrator(
		prompt.NewRegistry(),
		gateway,
		engine,
		chatRepo,
		logger,
		cfg.Pipeline.StrictGuard,
	)

	deps := api.Dependencies{
		Logger:   logger,
		Repo:     chatRepo,
		Pipeline: orchestrator,
		Readiness: api.CombineReadinessChecks(
			api.CheckChatStore(chatRepo),
			engine.HealthCheck,
		),
		DependencyTimeout: time.Second,
	}

	if cfg.ObjectStore.Endpoint != "" {
		objectStore, err := s3store.New(context.Background(), cfg.ObjectStore)
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Exporter = export.NewExporter(chatRepo, objectStore)
	}

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
