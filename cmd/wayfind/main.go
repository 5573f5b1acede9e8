package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/oriane-labs/wayfind/internal/config"
	dbRedis "github.com/oriane-labs/wayfind/internal/db/redis"
	logpkg "github.com/oriane-labs/wayfind/internal/logger"
	"github.com/oriane-labs/wayfind/internal/metrics"
	"github.com/oriane-labs/wayfind/internal/repository/anscache"
	assistrepo "github.com/oriane-labs/wayfind/internal/repository/assist"
	budgetrepo "github.com/oriane-labs/wayfind/internal/repository/budget"
	evidencerepo "github.com/oriane-labs/wayfind/internal/repository/evidence"
	factsrepo "github.com/oriane-labs/wayfind/internal/repository/facts"
	"github.com/oriane-labs/wayfind/internal/tool"
	chiTransport "github.com/oriane-labs/wayfind/internal/transport/chi"
	openaiT "github.com/oriane-labs/wayfind/internal/transport/openai"
	budgetuc "github.com/oriane-labs/wayfind/internal/usecase/budget"
	cacheuc "github.com/oriane-labs/wayfind/internal/usecase/cache"
	healthuc "github.com/oriane-labs/wayfind/internal/usecase/health"
	ingestuc "github.com/oriane-labs/wayfind/internal/usecase/ingest"
	memoryuc "github.com/oriane-labs/wayfind/internal/usecase/memory"
	reasoninguc "github.com/oriane-labs/wayfind/internal/usecase/reasoning"
	retrievaluc "github.com/oriane-labs/wayfind/internal/usecase/retrieval"
	routeruc "github.com/oriane-labs/wayfind/internal/usecase/router"
	"github.com/oriane-labs/wayfind/internal/version"
)

func main() {
	env := config.GetEnv()
	cfg := config.MustLoad(env)

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting wayfind API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	model := openaiT.NewModel(&openaiT.ModelConfig{
		APIKey:        cfg.Model.APIKey,
		BaseURL:       cfg.Model.BaseURL,
		Model:         cfg.Model.Model,
		Provider:      "openai",
		MaxConcurrent: cfg.Model.MaxConcurrent,
		MaxRetries:    cfg.Model.MaxRetries,
		Logger:        logger,
	})
	embedder := openaiT.NewEmbedder(&openaiT.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})
	logger.Info("Providers created",
		zap.String("model", cfg.Model.Model),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Single token budget tracker shared by the reasoning loop and /v1/usage.
	budgetCfg := cfg.Model.Budget
	action := budgetuc.ActionWarn
	if budgetCfg.Action == "reject" {
		action = budgetuc.ActionReject
	}
	tracker := budgetuc.New(
		cfg.Storage.KeyPrefix,
		budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit,
		action, logger,
	)
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		// Counter persistence so restarts and replicas share one budget.
		tracker.WithStore(ctx, budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour))
	}

	evidenceRepo := evidencerepo.New(store, cfg.Storage.KeyPrefix)
	factsRepo := factsrepo.New(store, cfg.Storage.KeyPrefix)
	assistRepo := assistrepo.New(store, cfg.Storage.KeyPrefix)
	cacheRepo := anscache.New(store, cfg.Storage.KeyPrefix, logger)

	domains := make([]string, 0, len(cfg.Router.Domains))
	for name := range cfg.Router.Domains {
		domains = append(domains, name)
		if err := evidenceRepo.EnsureIndex(ctx, name, cfg.Embedding.Dimensions); err != nil {
			logger.Fatal("Failed to ensure evidence index",
				zap.String("domain", name), zap.Error(err))
		}
	}
	if err := assistRepo.EnsureIndex(ctx, cfg.Embedding.Dimensions); err != nil {
		logger.Fatal("Failed to ensure assist index", zap.Error(err))
	}

	routerSvc := routeruc.New(cfg.Router, logger)
	retrievalSvc := retrievaluc.New(
		evidenceRepo, embedder, model,
		retrievaluc.ConfigFrom(cfg.Retrieval), logger,
	)
	memorySvc := memoryuc.New(
		factsRepo, assistRepo, embedder, model,
		memoryuc.Config{
			MaxFactsPerOwner: cfg.Memory.MaxFactsPerOwner,
			AssistTopK:       cfg.Memory.AssistTopK,
		},
		logger,
	)
	cacheSvc := cacheuc.New(
		cacheRepo, cfg.Cache.Enabled,
		time.Duration(cfg.Cache.TTLSec)*time.Second, logger,
	)
	ingestSvc := ingestuc.New(evidenceRepo, embedder, domains, logger)

	registry := tool.NewRegistry(
		tool.NewKnowledgeSearch(routerSvc, retrievalSvc),
		tool.NewFactQuery(memorySvc),
		tool.NewCalculator(),
		tool.NewDocumentAnalysis(model),
	)
	logger.Info("Tool registry assembled", zap.Strings("tools", registry.Names()))

	reasoningSvc := reasoninguc.New(
		model, routerSvc, registry, cacheSvc, memorySvc, tracker,
		reasoninguc.ConfigFrom(cfg.Reasoning), logger,
	)
	healthSvc := healthuc.New(store, model, embedder)

	server := chiTransport.NewServer(
		reasoningSvc, routerSvc, memorySvc, ingestSvc, tracker, healthSvc, logger,
	)
	handler := chiTransport.NewRouter(server, chiTransport.APIKeyAuth(cfg.Auth.APIKeys))

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
