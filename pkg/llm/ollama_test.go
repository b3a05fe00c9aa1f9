package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func ollamaServer(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaClient(Options{BaseURL: srv.URL, Model: "test-model"})
}

func TestOllamaGenerate(t *testing.T) {
	var gotReq ollamaChatRequest
	c := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: Message{Role: RoleAssistant, Content: "hello there"},
			Done:    true,
		})
	})

	got, err := c.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello there" {
		t.Errorf("got %q", got)
	}
	if gotReq.Model != "test-model" || gotReq.Stream {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestOllamaGenerate_HTTPError(t *testing.T) {
	c := ollamaServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	})

	_, err := c.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("error = %v", err)
	}
}

func TestOllamaGenerateStream(t *testing.T) {
	c := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("stream flag not set")
		}
		enc := json.NewEncoder(w)
		enc.Encode(ollamaChatResponse{Message: Message{Content: "one "}})
		enc.Encode(ollamaChatResponse{Message: Message{Content: "two"}})
		enc.Encode(ollamaChatResponse{Done: true})
	})

	var got []string
	err := c.GenerateStream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}},
		func(f string) error { got = append(got, f); return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, "") != "one two" {
		t.Errorf("fragments = %v", got)
	}
}

func TestOllamaGenerateStream_CallbackAborts(t *testing.T) {
	c := ollamaServer(t, func(w http.ResponseWriter, _ *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(ollamaChatResponse{Message: Message{Content: "one"}})
		enc.Encode(ollamaChatResponse{Message: Message{Content: "two"}})
		enc.Encode(ollamaChatResponse{Done: true})
	})

	abort := errors.New("client gone")
	calls := 0
	err := c.GenerateStream(context.Background(), nil, func(string) error {
		calls++
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("error = %v", err)
	}
	if calls != 1 {
		t.Errorf("callback called %d times after abort", calls)
	}
}

func TestOllamaGenerateStream_StreamError(t *testing.T) {
	c := ollamaServer(t, func(w http.ResponseWriter, _ *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(ollamaChatResponse{Message: Message{Content: "partial"}})
		enc.Encode(ollamaChatResponse{Error: "context length exceeded"})
	})

	err := c.GenerateStream(context.Background(), nil, func(string) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "context length exceeded") {
		t.Fatalf("error = %v", err)
	}
}
