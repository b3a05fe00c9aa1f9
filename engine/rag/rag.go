// Package rag orchestrates the Retrieval-Augmented Generation answer path.
// It embeds a user query, searches the vector index for relevant chunks,
// builds a grounded prompt with the conversation history, and drives the
// generation provider in whole-response or streaming mode.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/NewsDeskAI/newsdesk/engine/semantic"
	"github.com/NewsDeskAI/newsdesk/pkg/llm"
)

// QueryEmbedder is the slice of the embedding gateway the engine needs.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher abstracts vector similarity search.
type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int, threshold float32) ([]semantic.Document, error)
}

// Options configures the answer pipeline behaviour.
type Options struct {
	TopK           int
	ScoreThreshold float32
	SystemPrompt   string
	SearchTimeout  time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:           5,
		ScoreThreshold: 0.3,
		SystemPrompt:   defaultSystemPrompt,
		SearchTimeout:  5 * time.Second,
	}
}

const defaultSystemPrompt = `You are NewsDesk, an assistant that answers questions about recent news.
Answer the user's question using ONLY the provided context articles. If the
context does not contain enough information to answer, say that you don't
know. Do not invent facts or sources.`

// Source is a citation backing an answer.
type Source struct {
	DocID  string  `json:"doc_id"`
	Title  string  `json:"title"`
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float32 `json:"score"`
}

// Answer is the structured response from the answer pipeline.
type Answer struct {
	Content string   `json:"content"`
	Sources []Source `json:"sources"`
}

// Service is the retrieval and answer engine. It is stateless and safe to
// share across requests.
type Service struct {
	embed  QueryEmbedder
	search Searcher
	gen    llm.Client
	opts   Options
	logger *slog.Logger
}

// New creates the answer engine with its injected collaborators.
func New(embed QueryEmbedder, search Searcher, gen llm.Client, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultOptions().SearchTimeout
	}
	return &Service{embed: embed, search: search, gen: gen, opts: opts, logger: logger}
}

// Answer runs the full pipeline for one query: embed, search, generate.
// Zero retrieved documents still invoke the generator; the system prompt's
// admit-ignorance instruction handles that branch.
func (s *Service) Answer(ctx context.Context, query string, history []llm.Message) (*Answer, error) {
	sources, messages, err := s.retrieve(ctx, query, history)
	if err != nil {
		return nil, err
	}

	content, err := s.gen.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("rag: generate: %w", err)
	}

	return &Answer{Content: strings.TrimSpace(content), Sources: sources}, nil
}

// AnswerStream runs the same retrieval precursor as Answer, then streams
// generation fragments to onDelta in order. Retrieval precedes generation,
// so onSources fires with the citation list before the first fragment.
// Concatenating all fragments yields exactly Answer's content. The returned
// Answer carries the full accumulated text.
func (s *Service) AnswerStream(
	ctx context.Context,
	query string,
	history []llm.Message,
	onSources func([]Source) error,
	onDelta func(string) error,
) (*Answer, error) {
	sources, messages, err := s.retrieve(ctx, query, history)
	if err != nil {
		return nil, err
	}

	if onSources != nil {
		if err := onSources(sources); err != nil {
			return nil, err
		}
	}

	var builder strings.Builder
	forward := func(fragment string) error {
		if fragment == "" {
			return nil
		}
		builder.WriteString(fragment)
		return onDelta(fragment)
	}

	if streamer, ok := s.gen.(llm.StreamClient); ok {
		if err := streamer.GenerateStream(ctx, messages, forward); err != nil {
			return &Answer{Content: builder.String(), Sources: sources},
				fmt.Errorf("rag: stream generate: %w", err)
		}
	} else {
		// Provider without streaming: deliver the whole answer as one fragment.
		content, err := s.gen.Generate(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("rag: generate: %w", err)
		}
		if err := forward(content); err != nil {
			return &Answer{Content: builder.String(), Sources: sources}, err
		}
	}

	return &Answer{Content: strings.TrimSpace(builder.String()), Sources: sources}, nil
}

// retrieve embeds the query, searches the index, and assembles the prompt.
func (s *Service) retrieve(ctx context.Context, query string, history []llm.Message) ([]Source, []llm.Message, error) {
	vector, err := s.embed.EmbedOne(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("rag: embed query: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()

	docs, err := s.search.Search(searchCtx, vector, s.opts.TopK, s.opts.ScoreThreshold)
	if err != nil {
		return nil, nil, fmt.Errorf("rag: search: %w", err)
	}
	s.logger.Info("rag retrieval done", "query_len", len(query), "results", len(docs))

	sources := make([]Source, len(docs))
	for i, d := range docs {
		sources[i] = Source{
			DocID:  d.DocID,
			Title:  d.Title,
			Source: d.Source,
			Text:   d.Text,
			Score:  d.Score,
		}
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: s.opts.SystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: buildUserPrompt(query, docs)})

	return sources, messages, nil
}

// buildUserPrompt concatenates each retrieved document's title, source, and
// text into a context block ahead of the question.
func buildUserPrompt(query string, docs []semantic.Document) string {
	if len(docs) == 0 {
		return "Context: (no matching articles found)\n\nQuestion: " + query
	}
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, d := range docs {
		fmt.Fprintf(&b, "[%d] %s (source: %s)\n%s\n\n", i+1, d.Title, d.Source, d.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}
