package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ddrozdov/paperstream/app/api"
	"github.com/ddrozdov/paperstream/app/cfg"
	"github.com/ddrozdov/paperstream/app/config"
	"github.com/ddrozdov/paperstream/app/database"
	"github.com/ddrozdov/paperstream/app/extract"
	"github.com/ddrozdov/paperstream/app/feed"
	"github.com/ddrozdov/paperstream/app/llm"
	"github.com/ddrozdov/paperstream/app/pipeline"
	"github.com/ddrozdov/paperstream/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting paperstream", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	// Repositories
	feedRepo := database.NewFeedRepository(db)
	articleRepo := database.NewArticleRepository(db, appCfg.MaxStageAttempts)
	keywordRepo := database.NewKeywordRepository(db)
	favoriteRepo := database.NewFavoriteRepository(db)
	cacheRepo := database.NewCacheRepository(db)

	callTimeout := time.Duration(appCfg.CallTimeoutSeconds) * time.Second

	// Stage processors
	batchRunner := tasks.NewBatchRunner(articleRepo, appCfg.StageConcurrency,
		appCfg.FailureRateWindow, appCfg.FailureRateTrip)

	arxivClient := extract.NewArxivClient(appCfg.UserAgent)
	batchRunner.Register(pipeline.StageExtraction,
		extract.NewProcessor(articleRepo, arxivClient, appCfg.FullDocumentThreshold, callTimeout))

	if appCfg.OpenAIAPIKey != "" {
		generator := llm.NewOpenAIGenerator(appCfg.OpenAIAPIKey, appCfg.OpenAIModel)
		batchRunner.Register(pipeline.StageSummarization,
			llm.NewSummarizer(articleRepo, keywordRepo, cacheRepo, generator,
				appCfg.OpenAIModel, appCfg.SummaryMaxTokens, callTimeout))
		batchRunner.Register(pipeline.StageDeepAnalysis,
			llm.NewAnalyzer(articleRepo, cacheRepo, generator,
				appCfg.OpenAIModel, appCfg.AnalysisMaxTokens, callTimeout))
	} else {
		slog.Warn("OPENAI_API_KEY not set, summarization and deep analysis stages disabled")
	}

	// Feed machinery
	httpClient := &http.Client{Timeout: callTimeout}
	feedParser := feed.NewParser()
	ingester := feed.NewIngester(articleRepo)
	configLoader := config.NewLoader(appCfg.FeedsDir)

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount,
		"interval_seconds", appCfg.SchedulerInterval)
	scheduler := tasks.NewScheduler(configLoader, feedRepo, articleRepo,
		httpClient, feedParser, ingester, batchRunner)
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP server
	apiHandler := api.NewHandler(feedRepo, articleRepo, keywordRepo, favoriteRepo,
		batchRunner, appCfg.BatchSize, appCfg.Version)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}
