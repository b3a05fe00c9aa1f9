// Package ingest orchestrates the ingestion pipeline: article validation,
// chunking, batched embedding, and vector upsert, plus a NATS consumer that
// feeds articles into it.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/NewsDeskAI/newsdesk/engine/chunk"
	"github.com/NewsDeskAI/newsdesk/engine/domain"
	"github.com/NewsDeskAI/newsdesk/engine/semantic"
	"github.com/NewsDeskAI/newsdesk/pkg/fn"
	"github.com/NewsDeskAI/newsdesk/pkg/metrics"
)

// Embedder is the slice of the embedding gateway the pipeline needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Upserter is the slice of the vector store the pipeline needs.
type Upserter interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
}

// Deps holds the pipeline's injected collaborators.
type Deps struct {
	Chunker  *chunk.Chunker
	Embedder Embedder
	Store    Upserter
	Logger   *slog.Logger
	Metrics  *metrics.Registry
}

// batch carries state between pipeline stages.
type batch struct {
	articles []domain.Article
	records  []RecordResult
	chunks   []chunk.Chunk
	vectors  [][]float32
}

// Pipeline runs articles through chunk → embed → store, strictly in that
// order. It is stateless and safe to share across requests.
type Pipeline struct {
	stage  fn.Stage[*batch, *Report]
	logger *slog.Logger
}

// NewPipeline constructs the pipeline with all stages wired.
func NewPipeline(deps Deps) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	chunked := fn.TracedStage("ingest.chunk", stageChunk(deps.Chunker, log))
	embedded := fn.TracedStage("ingest.embed", stageEmbed(deps.Embedder))
	stored := fn.TracedStage("ingest.store", stageStore(deps.Store, deps.Metrics))

	return &Pipeline{
		stage:  fn.Then(fn.Then(chunked, embedded), stored),
		logger: log,
	}
}

// Ingest runs a batch of articles through the pipeline. Partial embedding
// failures absorbed as zero vectors do not fail the run; the first
// unrecoverable failure (single-item embedding batch, dimension mismatch,
// vector store error) aborts it and is returned wrapped, alongside a
// failure report.
func (p *Pipeline) Ingest(ctx context.Context, articles []domain.Article) (*Report, error) {
	b := &batch{articles: articles}
	result := p.stage(ctx, b)
	if result.IsErr() {
		_, err := result.Unwrap()
		wrapped := fmt.Errorf("ingest: %w", err)
		p.logger.Error("ingest failed", "articles", len(articles), "err", err)
		return &Report{
			Success:  false,
			Message:  "ingestion failed: " + err.Error(),
			Articles: len(articles),
			Records:  b.records,
		}, wrapped
	}
	report, _ := result.Unwrap()
	return report, nil
}

// stageChunk validates each article and splits the valid ones into chunks.
// Invalid articles are recorded in the report, not fatal.
func stageChunk(chunker *chunk.Chunker, log *slog.Logger) fn.Stage[*batch, *batch] {
	return func(_ context.Context, b *batch) fn.Result[*batch] {
		articles := b.articles
		valid := make([]domain.Article, 0, len(articles))
		for _, a := range articles {
			if err := domain.ValidateArticle(a); err != nil {
				log.Warn("ingest: article rejected", "doc_id", a.ID, "err", err)
				b.records = append(b.records, RecordResult{DocID: a.ID, Error: err.Error()})
				continue
			}
			valid = append(valid, a)
		}

		b.chunks = chunker.ProcessDocuments(valid)
		perDoc := make(map[string]int, len(valid))
		for _, c := range b.chunks {
			if id, ok := c.Metadata[chunk.KeyDocID].(string); ok {
				perDoc[id]++
			}
		}
		for _, a := range valid {
			b.records = append(b.records, RecordResult{DocID: a.ID, Chunks: perDoc[a.ID]})
		}
		return fn.Ok(b)
	}
}

// stageEmbed embeds every chunk's text, preserving index alignment between
// chunks and vectors.
func stageEmbed(embedder Embedder) fn.Stage[*batch, *batch] {
	return func(ctx context.Context, b *batch) fn.Result[*batch] {
		if len(b.chunks) == 0 {
			return fn.Ok(b)
		}
		texts := fn.Map(b.chunks, func(c chunk.Chunk) string { return c.Text })
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fn.Err[*batch](fmt.Errorf("embed chunks: %w", err))
		}
		b.vectors = vectors
		return fn.Ok(b)
	}
}

// stageStore zips chunks with their vectors and upserts them.
func stageStore(store Upserter, met *metrics.Registry) fn.Stage[*batch, *Report] {
	return func(ctx context.Context, b *batch) fn.Result[*Report] {
		if len(b.chunks) > 0 {
			records := make([]semantic.VectorRecord, len(b.chunks))
			for i, c := range b.chunks {
				payload := make(map[string]any, len(c.Metadata)+1)
				for k, v := range c.Metadata {
					payload[k] = v
				}
				payload["text"] = c.Text
				records[i] = semantic.VectorRecord{Vector: b.vectors[i], Payload: payload}
			}
			if err := store.Upsert(ctx, records); err != nil {
				return fn.Err[*Report](fmt.Errorf("vector upsert: %w", err))
			}
		}

		if met != nil {
			met.Counter("newsdesk_ingest_articles_total", "Articles accepted by the pipeline").Add(int64(len(b.articles)))
			met.Counter("newsdesk_ingest_chunks_total", "Chunks stored in the vector index").Add(int64(len(b.chunks)))
		}

		return fn.Ok(&Report{
			Success:  true,
			Message:  fmt.Sprintf("ingested %d chunks from %d articles", len(b.chunks), len(b.articles)),
			Articles: len(b.articles),
			Chunks:   len(b.chunks),
			Records:  b.records,
		})
	}
}
