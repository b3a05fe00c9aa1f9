// Package embed converts text into fixed-dimension vectors through an
// external embedding provider, with truncation, batching, and a
// batch-to-per-item failure fallback that never aborts a whole ingestion run
// for one bad chunk.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NewsDeskAI/newsdesk/engine/domain"
	"github.com/NewsDeskAI/newsdesk/pkg/fn"
	"github.com/NewsDeskAI/newsdesk/pkg/resilience"
)

// Provider is the boundary contract for an external embedding service.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Default gateway parameters.
const (
	DefaultBatchSize     = 32
	DefaultMaxTokens     = 8000
	DefaultCharsPerToken = 4
	DefaultBatchInterval = 200 * time.Millisecond
)

// Config bounds the gateway behaviour.
type Config struct {
	// Dimension is the provider model's vector length. Zero vectors minted
	// by the fallback path have this length.
	Dimension int
	// BatchSize is the maximum texts per provider batch call.
	BatchSize int
	// MaxTokens is the provider's input token budget; texts are truncated
	// to MaxTokens*CharsPerToken characters before any call.
	MaxTokens int
	// CharsPerToken approximates characters per token for truncation.
	CharsPerToken int
	// BatchInterval is the pacing between successive batch calls. It is
	// not applied after the final batch.
	BatchInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.CharsPerToken <= 0 {
		c.CharsPerToken = DefaultCharsPerToken
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = DefaultBatchInterval
	}
	return c
}

func (c Config) maxChars() int { return c.MaxTokens * c.CharsPerToken }

// Gateway wraps a Provider with truncation, pacing, and fallback policy.
// It is stateless per request and safe to share across goroutines.
type Gateway struct {
	provider Provider
	cfg      Config
	limiter  *resilience.Limiter
	breaker  *resilience.Breaker
	logger   *slog.Logger
}

// NewGateway creates a Gateway around provider.
func NewGateway(provider Provider, cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Gateway{
		provider: provider,
		cfg:      cfg,
		limiter: resilience.NewLimiter(resilience.LimiterOpts{
			Rate:  float64(time.Second) / float64(cfg.BatchInterval),
			Burst: 1,
		}),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		logger:  logger,
	}
}

// Dimension returns the configured vector dimension.
func (g *Gateway) Dimension() int { return g.cfg.Dimension }

// truncate clamps text to the configured character budget. Truncation is
// silent: logged, never an error.
func (g *Gateway) truncate(text string) string {
	max := g.cfg.maxChars()
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	g.logger.Warn("embed: input truncated", "chars", len(runes), "max", max)
	return string(runes[:max])
}

// EmbedOne embeds a single text, truncating it first.
func (g *Gateway) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	text = g.truncate(text)
	var vec []float32
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		v, err := g.provider.Embed(ctx, text)
		vec = v
		return err
	})
	if err != nil {
		return nil, domain.NewProviderError("embedding", "embed", err)
	}
	return vec, nil
}

// EmbedBatch embeds texts and always returns a slice with the same length
// and order as its input. Texts are truncated, partitioned into groups of
// BatchSize, and each group embedded with one provider call. A failed group
// with more than one member falls back to sequential per-item calls; items
// that still fail are replaced by zero vectors of the configured dimension.
// A failed group of exactly one member propagates its error.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	truncated := fn.Map(texts, g.truncate)
	out := make([][]float32, 0, len(texts))

	for _, group := range fn.Chunk(truncated, g.cfg.BatchSize) {
		// Token bucket with burst 1: the first group passes immediately,
		// later groups wait out the remaining interval.
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vecs, err := g.embedGroup(ctx, group)
		if err == nil && len(vecs) != len(group) {
			err = fmt.Errorf("cardinality mismatch: want %d vectors, got %d",
				len(group), len(vecs))
		}
		if err != nil {
			if len(group) == 1 {
				return nil, domain.NewProviderError("embedding", "embed_batch", err)
			}
			g.logger.Warn("embed: batch failed, falling back to per-item",
				"size", len(group), "err", err)
			vecs = g.embedItems(ctx, group)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (g *Gateway) embedGroup(ctx context.Context, group []string) ([][]float32, error) {
	var vecs [][]float32
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		v, err := g.provider.EmbedBatch(ctx, group)
		vecs = v
		return err
	})
	return vecs, err
}

// embedItems embeds each member of a failed group sequentially. Per-item
// failures become zero vectors so the pipeline never aborts on one chunk.
func (g *Gateway) embedItems(ctx context.Context, group []string) [][]float32 {
	vecs := make([][]float32, len(group))
	for i, text := range group {
		v, err := g.EmbedOne(ctx, text)
		if err != nil {
			g.logger.Warn("embed: item failed, using zero vector",
				"index", i, "provider", g.provider.Name(), "err", err)
			v = make([]float32, g.cfg.Dimension)
		}
		vecs[i] = v
	}
	return vecs
}
