// Package main implements the NewsDesk API server.
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

	"github.com/nats-io/nats.go"

	"github.com/NewsDeskAI/newsdesk/engine/chat"
	"github.com/NewsDeskAI/newsdesk/engine/chunk"
	"github.com/NewsDeskAI/newsdesk/engine/embed"
	"github.com/NewsDeskAI/newsdesk/engine/ingest"
	"github.com/NewsDeskAI/newsdesk/engine/rag"
	"github.com/NewsDeskAI/newsdesk/engine/semantic"
	"github.com/NewsDeskAI/newsdesk/pkg/config"
	"github.com/NewsDeskAI/newsdesk/pkg/kv"
	"github.com/NewsDeskAI/newsdesk/pkg/llm"
	"github.com/NewsDeskAI/newsdesk/pkg/metrics"
	"github.com/NewsDeskAI/newsdesk/pkg/mid"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()

	// --- Cache store (Badger) ---
	kvStore, err := kv.OpenBadger(cfg.Cache.Path, logger)
	if err != nil {
		return fmt.Errorf("open cache store: %w", err)
	}
	defer kvStore.Close()

	// --- Vector store (Qdrant) ---
	vectorStore, err := semantic.New(cfg.Qdrant.URL, cfg.Qdrant.Collection, cfg.Embedding.Dimension)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()
	if err := vectorStore.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	// --- Embedding gateway ---
	gateway := embed.NewGateway(embedProvider(cfg), embed.Config{
		Dimension:     cfg.Embedding.Dimension,
		BatchSize:     cfg.Embedding.BatchSize,
		MaxTokens:     cfg.Embedding.MaxTokens,
		BatchInterval: cfg.Embedding.BatchInterval(),
	}, logger)

	// --- RAG service ---
	ragOpts := rag.DefaultOptions()
	if cfg.RAG.TopK > 0 {
		ragOpts.TopK = cfg.RAG.TopK
	}
	if cfg.RAG.ScoreThreshold > 0 {
		ragOpts.ScoreThreshold = cfg.RAG.ScoreThreshold
	}
	if cfg.RAG.SystemPrompt != "" {
		ragOpts.SystemPrompt = cfg.RAG.SystemPrompt
	}
	ragSvc := rag.New(gateway, vectorStore, llmClient(cfg), ragOpts, logger)

	// --- Chat service ---
	cache := chat.NewCache(kvStore, chat.CacheConfig{
		KeyPrefix:  cfg.Cache.KeyPrefix,
		SessionTTL: cfg.Cache.SessionTTL(),
		QueryTTL:   cfg.Cache.QueryTTL(),
	}, logger)

	var sink chat.HistorySink
	if cfg.Sink.Path != "" {
		sqlSink, err := chat.NewSQLiteSink(cfg.Sink.Path)
		if err != nil {
			return fmt.Errorf("open history sink: %w", err)
		}
		defer sqlSink.Close()
		sink = sqlSink
	}

	chatSvc := chat.NewService(cache, ragSvc, sink, reg, logger)

	// --- Ingest pipeline ---
	pipeline := ingest.NewPipeline(ingest.Deps{
		Chunker: chunk.New(chunk.Config{
			MaxSize:  cfg.Chunker.MaxSize,
			MinSize:  cfg.Chunker.MinSize,
			Overlap:  cfg.Chunker.Overlap,
			Lookback: cfg.Chunker.Lookback,
		}, logger),
		Embedder: gateway,
		Store:    vectorStore,
		Logger:   logger,
		Metrics:  reg,
	})

	// --- Optional NATS consumer ---
	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		sub, err := ingest.StartConsumer(nc, pipeline, logger)
		if err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		defer sub.Unsubscribe()
		logger.Info("nats consumer started", "subject", ingest.ArticlesSubject)
	}

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("GET /metrics", reg.Handler())
	mux.HandleFunc("POST /api/ingest", handleIngest(pipeline, logger))
	mux.HandleFunc("POST /api/sessions", handleCreateSession(chatSvc))
	mux.HandleFunc("GET /api/sessions/{id}/history", handleHistory(chatSvc))
	mux.HandleFunc("POST /api/sessions/{id}/messages", handleMessage(chatSvc, logger))
	mux.HandleFunc("POST /api/sessions/{id}/stream", handleStream(chatSvc, logger))
	mux.HandleFunc("DELETE /api/sessions/{id}", handleClearSession(chatSvc))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.Server.CORSOrigin),
		mid.OTel("newsdesk-api"),
		mid.RateLimit(cfg.Server.RateRPS, cfg.Server.RateBurst),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming responses manage their own deadlines
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func embedProvider(cfg *config.Config) embed.Provider {
	if cfg.Embedding.Provider == "openai" {
		return embed.NewOpenAIProvider(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model)
	}
	return embed.NewOllamaProvider(cfg.Embedding.BaseURL, cfg.Embedding.Model)
}

func llmClient(cfg *config.Config) llm.Client {
	opts := llm.Options{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
	}
	if cfg.LLM.Provider == "openai" {
		return llm.NewOpenAIClient(opts)
	}
	return llm.NewOllamaClient(opts)
}
