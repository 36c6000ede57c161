package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"diary-assistant/assistant"
	"diary-assistant/cache"
	"diary-assistant/config"
	"diary-assistant/database"
	"diary-assistant/embedding"
	"diary-assistant/llmclient"
	"diary-assistant/vectorstore"
	"diary-assistant/web"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Load config (which includes log level setting)
	cfg := config.Load(tempLogger)

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	llm := llmclient.New(cfg, logger)

	embedder, err := embedding.New(ctx, llm, cfg.EmbeddingModel, cfg.EmbedCacheSize, logger)
	if err != nil {
		logger.Fatal("Failed to initialize embedding service", zap.Error(err))
	}

	var index vectorstore.Index
	switch cfg.VectorBackend {
	case "pgvector":
		index, err = vectorstore.NewPgvectorIndex(ctx, cfg.PostgresDSN, embedder.Dimension(), logger)
	default:
		snapshotPath := filepath.Join(cfg.DataDir, cfg.CollectionName+".json")
		index, err = vectorstore.NewChromemIndex(cfg.CollectionName, snapshotPath, logger)
	}
	if err != nil {
		logger.Fatal("Failed to initialize vector index", zap.Error(err))
	}

	store, err := vectorstore.New(ctx, embedder, index, logger)
	if err != nil {
		logger.Fatal("Failed to initialize vector store", zap.Error(err))
	}

	responses := cache.New(cfg.ResponseCacheSize, cfg.ResponseCacheTTL, logger)

	diaryAssistant := assistant.New(cfg, llm, store, responses, logger)

	history, err := database.NewHistoryStore(cfg.HistoryPath)
	if err != nil {
		logger.Fatal("Failed to open history database", zap.Error(err))
	}
	defer history.Close()

	if err := history.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure history schema", zap.Error(err))
	}

	webServer := web.NewServer(diaryAssistant, llm, history, logger, cfg)

	// Create context that listens for interrupt signals
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	port := fmt.Sprintf(":%d", cfg.WebPort)
	logger.Info("Starting diary assistant web server", zap.String("port", port))
	if err := webServer.Start(ctx, port); err != nil {
		logger.Error("Web server error", zap.Error(err))
	}

	if err := store.Close(context.Background()); err != nil {
		logger.Error("Failed to close vector store", zap.Error(err))
	}
}
