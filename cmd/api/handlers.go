package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/NewsDeskAI/newsdesk/engine/chat"
	"github.com/NewsDeskAI/newsdesk/engine/domain"
	"github.com/NewsDeskAI/newsdesk/engine/ingest"
)

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// IngestRequest is the JSON body for POST /api/ingest.
type IngestRequest struct {
	Articles []domain.Article `json:"articles"`
}

func handleIngest(pipeline *ingest.Pipeline, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Articles) == 0 {
			writeError(w, http.StatusBadRequest, "articles are required")
			return
		}

		report, err := pipeline.Ingest(r.Context(), req.Articles)
		if err != nil {
			logger.Error("ingest failed", "err", err)
			writeJSON(w, http.StatusBadGateway, report)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleCreateSession(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := svc.CreateSession(r.Context())
		writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
	}
}

func handleHistory(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := svc.History(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
	}
}

func handleClearSession(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.ClearSession(r.Context(), r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	}
}

// MessageRequest is the JSON body for the message and stream endpoints.
type MessageRequest struct {
	Message string `json:"message"`
}

func handleMessage(svc *chat.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Message == "" {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}

		reply, err := svc.SendMessage(r.Context(), r.PathValue("id"), req.Message)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				writeError(w, http.StatusNotFound, "session not found")
				return
			}
			logger.Error("message failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func handleStream(svc *chat.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Message == "" {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		emit := func(ev chat.Event) error {
			if err := r.Context().Err(); err != nil {
				return err
			}
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		}

		err := svc.StreamMessage(r.Context(), r.PathValue("id"), req.Message, emit)
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			logger.Error("stream failed", "err", err)
		}
		if errors.Is(err, domain.ErrSessionNotFound) {
			// headers already sent; the error event is all we can do
			emit(chat.Event{Type: chat.EventError, Content: "session not found"})
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
