// Package main is the entry point for the memoraid memory service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nugget/memoraid/internal/api"
	"github.com/nugget/memoraid/internal/buildinfo"
	"github.com/nugget/memoraid/internal/config"
	"github.com/nugget/memoraid/internal/embeddings"
	"github.com/nugget/memoraid/internal/extractor"
	"github.com/nugget/memoraid/internal/forgetter"
	"github.com/nugget/memoraid/internal/llm"
	"github.com/nugget/memoraid/internal/manager"
	"github.com/nugget/memoraid/internal/retriever"
	"github.com/nugget/memoraid/internal/store"

	_ "github.com/mattn/go-sqlite3"
)

// Exit codes: 0 success, 2 config error, 3 storage error, 4 transient
// (LLM/network) error at startup.
const (
	exitOK        = 0
	exitConfig    = 2
	exitStorage   = 3
	exitTransient = 4
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if flag.NArg() == 0 {
		printUsage()
		return
	}

	switch flag.Arg(0) {
	case "serve":
		runServe(logger, *configPath)
	case "version":
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.BuildInfo() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
		printUsage()
		os.Exit(exitConfig)
	}
}

func printUsage() {
	fmt.Println("memoryd - companion memory service")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve    Start the memory API server")
	fmt.Println("  version  Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func runServe(logger *slog.Logger, configPath string) {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(exitConfig)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(exitConfig)
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(exitConfig)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	logger.Info("starting memoryd", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "config", cfgPath)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "path", cfg.DataDir, "error", err)
		os.Exit(exitStorage)
	}

	dbPath := cfg.DataDir + "/memoraid.db"
	storage, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		logger.Error("failed to open memory database", "path", dbPath, "error", err)
		os.Exit(exitStorage)
	}
	defer storage.Close()
	logger.Info("memory database opened", "path", dbPath)

	if !cfg.LLM.Configured() {
		logger.Error("llm provider configured without credentials", "provider", cfg.LLM.Provider)
		os.Exit(exitConfig)
	}
	llmClient, err := llm.New(cfg.LLM, logger)
	if err != nil {
		logger.Error("failed to build llm client", "error", err)
		os.Exit(exitConfig)
	}
	if err := llmClient.Ping(context.Background()); err != nil {
		logger.Warn("llm provider ping failed, continuing — extraction will fall back to rules on failure", "error", err)
	}

	ext := extractor.NewFallbackExtractor(
		extractor.NewLLMExtractor(llmClient),
		extractor.NewRuleExtractor(cfg.EpisodeSummaryMaxLength),
		logger,
	)

	var index retriever.VectorIndex
	var embedder retriever.Embedder
	if cfg.EnableVectorSearch {
		switch cfg.VectorBackend {
		case "qdrant":
			qIndex, err := retriever.NewQdrantIndex(cfg.Qdrant, cfg.VectorDim)
			if err != nil {
				logger.Error("failed to connect to qdrant", "error", err)
				os.Exit(exitTransient)
			}
			index = qIndex
			logger.Info("vector search enabled", "backend", "qdrant", "collection", cfg.Qdrant.Collection)
		default:
			index = retriever.NewInProcessIndex()
			logger.Info("vector search enabled", "backend", "inprocess")
		}
		if cfg.Embeddings.Enabled {
			embedder = embeddings.New(embeddings.Config{BaseURL: cfg.Embeddings.BaseURL, Model: cfg.Embeddings.Model})
		}
	}

	retr := retriever.New(storage, index, embedder, *cfg, logger)
	forg := forgetter.New(storage, *cfg, logger)

	worker := forgetter.NewWorker(forg, forgetter.WorkerConfig{}, logger)
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	worker.Start(workerCtx)
	defer func() {
		cancelWorker()
		worker.Stop()
	}()

	mgr := manager.New(storage, llmClient, ext, retr, forg, *cfg, logger)
	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, mgr, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			logger.Error("server failed", "error", err)
			os.Exit(exitTransient)
		}
	}
	logger.Info("memoryd stopped")
}
