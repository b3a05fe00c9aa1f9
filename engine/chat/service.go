package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NewsDeskAI/newsdesk/engine/domain"
	"github.com/NewsDeskAI/newsdesk/engine/rag"
	"github.com/NewsDeskAI/newsdesk/pkg/llm"
	"github.com/NewsDeskAI/newsdesk/pkg/metrics"
)

// AnswerEngine produces grounded answers for user queries. Satisfied by
// rag.Service.
type AnswerEngine interface {
	Answer(ctx context.Context, query string, history []llm.Message) (*rag.Answer, error)
	AnswerStream(ctx context.Context, query string, history []llm.Message,
		onSources func([]rag.Source) error, onDelta func(string) error) (*rag.Answer, error)
}

// Service drives chat sessions: it checks the query cache, runs retrieval
// and generation on a miss, and records every completed turn in both the
// session history and the durable sink.
type Service struct {
	cache  *Cache
	engine AnswerEngine
	sink   HistorySink
	logger *slog.Logger

	msgTotal  *metrics.Counter
	cacheHits *metrics.Counter
}

// NewService wires a chat service. sink may be nil to skip durable history.
func NewService(cache *Cache, engine AnswerEngine, sink HistorySink, reg *metrics.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = NopSink{}
	}
	s := &Service{cache: cache, engine: engine, sink: sink, logger: logger}
	if reg != nil {
		s.msgTotal = reg.Counter("newsdesk_chat_messages_total", "Chat messages processed.")
		s.cacheHits = reg.Counter("newsdesk_chat_cache_hits_total", "Chat answers served from the query cache.")
	}
	return s
}

// CreateSession starts a fresh session and returns its identifier.
func (s *Service) CreateSession(ctx context.Context) string {
	id := s.cache.CreateSession(ctx)
	s.logger.Info("session created", "session", id)
	return id
}

// History returns the session's messages, or domain.ErrSessionNotFound when
// the session is unknown or has expired.
func (s *Service) History(ctx context.Context, id string) ([]ChatMessage, error) {
	msgs, ok := s.cache.History(ctx, id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return msgs, nil
}

// ClearSession empties the session's history while keeping the identifier
// usable for further messages.
func (s *Service) ClearSession(ctx context.Context, id string) {
	s.cache.Clear(ctx, id)
	s.logger.Info("session cleared", "session", id)
}

// SendMessage processes one user message synchronously and returns the
// assistant's reply.
func (s *Service) SendMessage(ctx context.Context, id, text string) (*ChatMessage, error) {
	s.count(s.msgTotal)
	history, ok := s.cache.History(ctx, id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	userMsg := ChatMessage{Role: domain.RoleUser, Content: text, Timestamp: time.Now().UTC()}

	if cached, ok := s.cache.CachedAnswer(ctx, text); ok {
		s.count(s.cacheHits)
		reply := ChatMessage{
			Role:      domain.RoleAssistant,
			Content:   cached.Response,
			Sources:   cached.Sources,
			Timestamp: time.Now().UTC(),
			Cached:    true,
		}
		s.persist(ctx, id, userMsg, reply)
		return &reply, nil
	}

	answer, err := s.engine.Answer(ctx, text, toLLMHistory(history))
	if err != nil {
		return nil, fmt.Errorf("process message: %w", err)
	}
	reply := ChatMessage{
		Role:      domain.RoleAssistant,
		Content:   answer.Content,
		Sources:   answer.Sources,
		Timestamp: time.Now().UTC(),
	}
	s.cache.StoreAnswer(ctx, text, &CachedResult{Response: answer.Content, Sources: answer.Sources})
	s.persist(ctx, id, userMsg, reply)
	return &reply, nil
}

// StreamMessage processes one user message, pushing events to emit as the
// answer forms: a start event, one sources event, zero or more chunk events,
// and a terminal end or error event. A cache hit replays the stored answer
// as a single chunk. When emit fails (client gone), generation stops and the
// accumulated prefix is persisted as a partial turn without entering the
// query cache.
func (s *Service) StreamMessage(ctx context.Context, id, text string, emit func(Event) error) error {
	s.count(s.msgTotal)
	history, ok := s.cache.History(ctx, id)
	if !ok {
		return domain.ErrSessionNotFound
	}
	userMsg := ChatMessage{Role: domain.RoleUser, Content: text, Timestamp: time.Now().UTC()}

	if err := emit(Event{Type: EventStart}); err != nil {
		return err
	}

	if cached, ok := s.cache.CachedAnswer(ctx, text); ok {
		s.count(s.cacheHits)
		reply := ChatMessage{
			Role:      domain.RoleAssistant,
			Content:   cached.Response,
			Sources:   cached.Sources,
			Timestamp: time.Now().UTC(),
			Cached:    true,
		}
		if err := emit(Event{Type: EventSources, Sources: cached.Sources}); err == nil {
			if err := emit(Event{Type: EventChunk, Content: cached.Response}); err == nil {
				emit(Event{Type: EventEnd})
			}
		}
		s.persist(ctx, id, userMsg, reply)
		return nil
	}

	disconnected := false
	onSources := func(srcs []rag.Source) error {
		if err := emit(Event{Type: EventSources, Sources: srcs}); err != nil {
			disconnected = true
			return err
		}
		return nil
	}
	onDelta := func(delta string) error {
		if err := emit(Event{Type: EventChunk, Content: delta}); err != nil {
			disconnected = true
			return err
		}
		return nil
	}

	answer, err := s.engine.AnswerStream(ctx, text, toLLMHistory(history), onSources, onDelta)
	switch {
	case err == nil:
		s.cache.StoreAnswer(ctx, text, &CachedResult{Response: answer.Content, Sources: answer.Sources})
		reply := ChatMessage{
			Role:      domain.RoleAssistant,
			Content:   answer.Content,
			Sources:   answer.Sources,
			Timestamp: time.Now().UTC(),
		}
		s.persist(ctx, id, userMsg, reply)
		emit(Event{Type: EventEnd})
		return nil
	case disconnected:
		s.logger.Info("stream aborted by client", "session", id)
		s.persistPartial(ctx, id, userMsg, answer)
		return nil
	default:
		s.logger.Error("answer generation failed", "session", id, "err", err)
		s.persistPartial(ctx, id, userMsg, answer)
		emit(Event{Type: EventError, Content: "answer generation failed"})
		return fmt.Errorf("process message: %w", err)
	}
}

// persistPartial records whatever prefix of the answer was produced before
// the stream ended abnormally. Partial answers never enter the query cache.
func (s *Service) persistPartial(ctx context.Context, id string, userMsg ChatMessage, answer *rag.Answer) {
	if answer == nil || answer.Content == "" {
		s.cache.Append(ctx, id, userMsg)
		return
	}
	reply := ChatMessage{
		Role:      domain.RoleAssistant,
		Content:   answer.Content,
		Sources:   answer.Sources,
		Timestamp: time.Now().UTC(),
		Partial:   true,
	}
	s.persist(ctx, id, userMsg, reply)
}

func (s *Service) persist(ctx context.Context, id string, userMsg, reply ChatMessage) {
	s.cache.Append(ctx, id, userMsg, reply)
	go func() {
		sinkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.sink.Record(sinkCtx, id, userMsg, reply); err != nil {
			s.logger.Warn("history sink write failed", "session", id, "err", err)
		}
	}()
}

func (s *Service) count(c *metrics.Counter) {
	if c != nil {
		c.Inc()
	}
}

func toLLMHistory(msgs []ChatMessage) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
