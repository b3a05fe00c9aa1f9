package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// OllamaClient implements StreamClient using Ollama's HTTP chat API.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

var _ StreamClient = (*OllamaClient)(nil)

// NewOllamaClient creates an Ollama chat client.
func NewOllamaClient(opts Options) *OllamaClient {
	return &OllamaClient{
		baseURL: opts.BaseURL,
		model:   opts.Model,
		client:  &http.Client{},
	}
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

func (c *OllamaClient) post(ctx context.Context, stream bool, messages []Message) (*http.Response, error) {
	body, err := json.Marshal(ollamaChatRequest{Model: c.model, Messages: messages, Stream: stream})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: ollama chat: %w", err)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if len(data) > 0 {
			return nil, fmt.Errorf("llm: ollama chat: %s", string(data))
		}
		return nil, fmt.Errorf("llm: ollama chat: status %s", resp.Status)
	}
	return resp, nil
}

// Generate returns the whole completion for the conversation.
func (c *OllamaClient) Generate(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.post(ctx, false, messages)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("llm: decode ollama response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("llm: ollama chat: %s", parsed.Error)
	}
	return parsed.Message.Content, nil
}

// GenerateStream streams NDJSON fragments from Ollama to fn.
func (c *OllamaClient) GenerateStream(ctx context.Context, messages []Message, fn func(string) error) error {
	resp, err := c.post(ctx, true, messages)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var chunk ollamaChatResponse
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("llm: decode ollama stream: %w", err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("llm: ollama chat: %s", chunk.Error)
		}
		if chunk.Message.Content != "" {
			if err := fn(chunk.Message.Content); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
}
