package embed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/NewsDeskAI/newsdesk/engine/domain"
)

// --- mocks ---

type mockProvider struct {
	embedFn      func(text string) ([]float32, error)
	embedBatchFn func(texts []string) ([][]float32, error)
	embedCalls   []string
	batchCalls   [][]string
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls = append(m.embedCalls, text)
	if m.embedFn != nil {
		return m.embedFn(text)
	}
	return []float32{1}, nil
}

func (m *mockProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls = append(m.batchCalls, texts)
	if m.embedBatchFn != nil {
		return m.embedBatchFn(texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func testConfig() Config {
	return Config{Dimension: 3, BatchSize: 2, BatchInterval: time.Millisecond}
}

// --- tests ---

func TestEmbedBatch_Empty(t *testing.T) {
	g := NewGateway(&mockProvider{}, testConfig(), nil)

	vecs, err := g.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vecs != nil {
		t.Errorf("got %v, want nil", vecs)
	}
}

func TestEmbedBatch_PreservesOrderAcrossGroups(t *testing.T) {
	p := &mockProvider{
		embedBatchFn: func(texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i, txt := range texts {
				out[i] = []float32{float32(len(txt)), 0, 0}
			}
			return out, nil
		},
	}
	g := NewGateway(p, testConfig(), nil)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := g.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, txt := range texts {
		if vecs[i][0] != float32(len(txt)) {
			t.Errorf("vector %d = %v, want first element %d", i, vecs[i], len(txt))
		}
	}
	// BatchSize 2 over 5 texts means 3 provider calls.
	if len(p.batchCalls) != 3 {
		t.Errorf("got %d batch calls, want 3", len(p.batchCalls))
	}
}

func TestEmbedBatch_FallbackZeroVectors(t *testing.T) {
	provErr := errors.New("model overloaded")
	p := &mockProvider{
		embedBatchFn: func([]string) ([][]float32, error) { return nil, provErr },
		embedFn: func(text string) ([]float32, error) {
			if text == "bad" {
				return nil, provErr
			}
			return []float32{9, 9, 9}, nil
		},
	}
	g := NewGateway(p, testConfig(), nil)

	vecs, err := g.EmbedBatch(context.Background(), []string{"good", "bad"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if vecs[0][0] != 9 {
		t.Errorf("vector 0 = %v, want per-item embedding", vecs[0])
	}
	for i, v := range vecs[1] {
		if v != 0 {
			t.Errorf("vector 1[%d] = %v, want zero vector", i, v)
		}
	}
	if len(vecs[1]) != 3 {
		t.Errorf("zero vector length = %d, want configured dimension 3", len(vecs[1]))
	}
}

func TestEmbedBatch_AllItemsFailStillFullLength(t *testing.T) {
	provErr := errors.New("model overloaded")
	p := &mockProvider{
		embedBatchFn: func([]string) ([][]float32, error) { return nil, provErr },
		embedFn:      func(string) ([]float32, error) { return nil, provErr },
	}
	g := NewGateway(p, testConfig(), nil)

	vecs, err := g.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	for i, vec := range vecs {
		if len(vec) != 3 {
			t.Fatalf("vector %d length = %d, want configured dimension 3", i, len(vec))
		}
		for j, v := range vec {
			if v != 0 {
				t.Errorf("vector %d[%d] = %v, want zero", i, j, v)
			}
		}
	}
}

func TestEmbedBatch_OpenBreakerAbsorbedAsZeroVectors(t *testing.T) {
	provErr := errors.New("provider down")
	p := &mockProvider{
		embedFn: func(string) ([]float32, error) { return nil, provErr },
	}
	g := NewGateway(p, testConfig(), nil)

	// Five consecutive failures trip the breaker.
	for i := 0; i < 5; i++ {
		if _, err := g.EmbedOne(context.Background(), "x"); err == nil {
			t.Fatal("expected provider error")
		}
	}
	tripped := len(p.embedCalls)

	vecs, err := g.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	for i, vec := range vecs {
		if len(vec) != 3 {
			t.Fatalf("vector %d length = %d, want configured dimension 3", i, len(vec))
		}
		for j, v := range vec {
			if v != 0 {
				t.Errorf("vector %d[%d] = %v, want zero", i, j, v)
			}
		}
	}
	// The open breaker rejects calls before they reach the provider.
	if len(p.batchCalls) != 0 {
		t.Errorf("got %d batch calls, want none while open", len(p.batchCalls))
	}
	if len(p.embedCalls) != tripped {
		t.Errorf("got %d per-item calls, want none while open", len(p.embedCalls)-tripped)
	}
}

func TestEmbedBatch_NoPacingAfterFinalBatch(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 4
	cfg.BatchInterval = 300 * time.Millisecond
	g := NewGateway(&mockProvider{}, cfg, nil)

	start := time.Now()
	if _, err := g.EmbedBatch(context.Background(), []string{"a", "b", "c"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= cfg.BatchInterval {
		t.Errorf("single batch took %v, want no pacing wait", elapsed)
	}
}

func TestEmbedBatch_SingleItemGroupPropagatesError(t *testing.T) {
	provErr := errors.New("bad request")
	p := &mockProvider{
		embedBatchFn: func([]string) ([][]float32, error) { return nil, provErr },
	}
	g := NewGateway(p, testConfig(), nil)

	_, err := g.EmbedBatch(context.Background(), []string{"only"})
	if err == nil {
		t.Fatal("expected error")
	}
	var perr *domain.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error %v is not a ProviderError", err)
	}
	if !errors.Is(err, provErr) {
		t.Errorf("error %v does not wrap the provider error", err)
	}
	if len(p.embedCalls) != 0 {
		t.Errorf("no per-item fallback expected, got %d calls", len(p.embedCalls))
	}
}

func TestEmbedBatch_CardinalityMismatchFallsBack(t *testing.T) {
	p := &mockProvider{
		embedBatchFn: func(texts []string) ([][]float32, error) {
			return [][]float32{{1, 0, 0}}, nil // always one vector short
		},
	}
	g := NewGateway(p, testConfig(), nil)

	vecs, err := g.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if len(p.embedCalls) != 2 {
		t.Errorf("got %d per-item calls, want 2", len(p.embedCalls))
	}
}

func TestEmbedOne_Truncates(t *testing.T) {
	var got string
	p := &mockProvider{
		embedFn: func(text string) ([]float32, error) {
			got = text
			return []float32{1, 2, 3}, nil
		},
	}
	cfg := testConfig()
	cfg.MaxTokens = 2
	cfg.CharsPerToken = 4
	g := NewGateway(p, cfg, nil)

	if _, err := g.EmbedOne(context.Background(), strings.Repeat("x", 50)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 8 {
		t.Errorf("provider saw %d chars, want 8", len(got))
	}
}

func TestEmbedOne_WrapsProviderError(t *testing.T) {
	provErr := errors.New("connection refused")
	p := &mockProvider{embedFn: func(string) ([]float32, error) { return nil, provErr }}
	g := NewGateway(p, testConfig(), nil)

	_, err := g.EmbedOne(context.Background(), "hello")
	if !errors.Is(err, provErr) {
		t.Fatalf("error %v does not wrap the provider error", err)
	}
	var perr *domain.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error %v is not a ProviderError", err)
	}
	if perr.Provider != "embedding" {
		t.Errorf("provider = %q", perr.Provider)
	}
}
