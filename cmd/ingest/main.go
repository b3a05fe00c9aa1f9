// Command ingest loads article JSON files into the vector store, either by
// running the ingestion pipeline directly or by publishing to the message bus
// for the API server's consumer to pick up.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/NewsDeskAI/newsdesk/engine/chunk"
	"github.com/NewsDeskAI/newsdesk/engine/domain"
	"github.com/NewsDeskAI/newsdesk/engine/embed"
	"github.com/NewsDeskAI/newsdesk/engine/ingest"
	"github.com/NewsDeskAI/newsdesk/engine/semantic"
	"github.com/NewsDeskAI/newsdesk/pkg/config"
	"github.com/NewsDeskAI/newsdesk/pkg/natsutil"
)

// loader consumes one batch of decoded articles.
type loader func(ctx context.Context, articles []domain.Article) error

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		publish    = flag.Bool("publish", false, "publish articles to NATS instead of ingesting directly")
		dataDir    = flag.String("dir", "", "directory to watch for article JSON files (one-shot file args otherwise)")
		interval   = flag.Duration("interval", 30*time.Second, "directory scan interval")
		stateFile  = flag.String("state", "", "processed-files state path (defaults to <dir>/.ingest-state.json)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	load, cleanup, err := buildLoader(cfg, *publish, logger)
	if err != nil {
		logger.Error("setup failed", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	if *dataDir == "" {
		if flag.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "usage: ingest [flags] file.json ...  (or -dir to watch)")
			os.Exit(2)
		}
		failed := 0
		for _, path := range flag.Args() {
			count, errs := processFile(ctx, path, load, logger)
			logger.Info("file done", "file", path, "ingested", count, "errors", errs)
			failed += errs
		}
		if failed > 0 {
			os.Exit(1)
		}
		return
	}

	watch(ctx, *dataDir, *interval, *stateFile, load, logger)
}

// buildLoader picks between the direct pipeline and NATS publish paths.
func buildLoader(cfg *config.Config, publish bool, logger *slog.Logger) (loader, func(), error) {
	if publish {
		nc, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("nats connect: %w", err)
		}
		load := func(ctx context.Context, articles []domain.Article) error {
			for _, a := range articles {
				if err := natsutil.Publish(ctx, nc, ingest.ArticlesSubject, a); err != nil {
					return fmt.Errorf("publish article %s: %w", a.ID, err)
				}
			}
			return nc.Flush()
		}
		return load, func() { nc.Drain() }, nil
	}

	vs, err := semantic.New(cfg.Qdrant.URL, cfg.Qdrant.Collection, cfg.Embedding.Dimension)
	if err != nil {
		return nil, nil, fmt.Errorf("qdrant connect: %w", err)
	}
	if err := vs.EnsureCollection(context.Background()); err != nil {
		vs.Close()
		return nil, nil, fmt.Errorf("ensure collection: %w", err)
	}

	var provider embed.Provider
	if cfg.Embedding.Provider == "openai" {
		provider = embed.NewOpenAIProvider(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model)
	} else {
		provider = embed.NewOllamaProvider(cfg.Embedding.BaseURL, cfg.Embedding.Model)
	}
	gateway := embed.NewGateway(provider, embed.Config{
		Dimension:     cfg.Embedding.Dimension,
		BatchSize:     cfg.Embedding.BatchSize,
		MaxTokens:     cfg.Embedding.MaxTokens,
		BatchInterval: cfg.Embedding.BatchInterval(),
	}, logger)

	pipeline := ingest.NewPipeline(ingest.Deps{
		Chunker: chunk.New(chunk.Config{
			MaxSize:  cfg.Chunker.MaxSize,
			MinSize:  cfg.Chunker.MinSize,
			Overlap:  cfg.Chunker.Overlap,
			Lookback: cfg.Chunker.Lookback,
		}, logger),
		Embedder: gateway,
		Store:    vs,
		Logger:   logger,
	})

	load := func(ctx context.Context, articles []domain.Article) error {
		report, err := pipeline.Ingest(ctx, articles)
		if err != nil {
			return err
		}
		logger.Info("batch ingested", "articles", report.Articles, "chunks", report.Chunks)
		return nil
	}
	return load, func() { vs.Close() }, nil
}

// processFile decodes one JSON file of articles (a single array, or a stream
// of objects/arrays) and hands them to load. Returns ingested and error
// counts.
func processFile(ctx context.Context, path string, load loader, logger *slog.Logger) (int, int) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file failed", "file", path, "err", err)
		return 0, 1
	}

	articles := decodeArticles(data)
	if len(articles) == 0 {
		logger.Warn("no articles found in file", "file", path)
		return 0, 0
	}

	if err := load(ctx, articles); err != nil {
		logger.Error("load failed", "file", path, "err", err)
		return 0, 1
	}
	return len(articles), 0
}

func decodeArticles(data []byte) []domain.Article {
	var articles []domain.Article
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var batch []domain.Article
		if err := dec.Decode(&batch); err == nil {
			articles = append(articles, batch...)
			continue
		}
		break
	}
	if len(articles) > 0 {
		return articles
	}
	// fall back to a stream of single objects
	dec = json.NewDecoder(bytes.NewReader(data))
	for {
		var a domain.Article
		if err := dec.Decode(&a); err != nil {
			break
		}
		if a.ID != "" && a.Content != "" {
			articles = append(articles, a)
		}
	}
	return articles
}

// watch scans dir on an interval, processing new JSON files once. Files that
// produced errors stay unmarked so they retry on the next scan.
func watch(ctx context.Context, dir string, interval time.Duration, statePath string, load loader, logger *slog.Logger) {
	if statePath == "" {
		statePath = filepath.Join(dir, ".ingest-state.json")
	}
	os.MkdirAll(dir, 0o755)
	processed := loadState(statePath)

	logger.Info("watching for article files", "dir", dir, "interval", interval)

	scan := func() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.Error("readdir failed", "dir", dir, "err", err)
			return
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || e.Name()[0] == '.' {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			key := fmt.Sprintf("%s:%d", e.Name(), info.Size())
			if processed[key] {
				continue
			}

			path := filepath.Join(dir, e.Name())
			count, errs := processFile(ctx, path, load, logger)
			logger.Info("file done", "file", e.Name(), "ingested", count, "errors", errs)

			if errs == 0 {
				processed[key] = true
				saveState(statePath, processed)
			} else {
				logger.Warn("file had errors, will retry on next scan", "file", e.Name())
			}
		}
	}

	scan()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
			scan()
		}
	}
}

func loadState(path string) map[string]bool {
	m := make(map[string]bool)
	data, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	json.Unmarshal(data, &m)
	return m
}

func saveState(path string, m map[string]bool) {
	data, _ := json.Marshal(m)
	os.WriteFile(path, data, 0o644)
}
