package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaClient talks to a local Ollama runtime over its HTTP API. It queries
// the model inventory and runs chat completions, streaming or not.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// OllamaOption represents a configuration option for OllamaClient.
type OllamaOption func(*OllamaClient)

// WithOllamaHTTPClient sets the HTTP client used for all requests.
func WithOllamaHTTPClient(httpClient *http.Client) OllamaOption {
	return func(o *OllamaClient) {
		o.httpClient = httpClient
	}
}

// WithOllamaLogger sets the logger for the client.
func WithOllamaLogger(logger *slog.Logger) OllamaOption {
	return func(o *OllamaClient) {
		o.logger = logger.With(slog.String("package", "chat"))
	}
}

// NewOllamaClient creates a client for the Ollama runtime at baseURL. An
// empty baseURL falls back to the default local address.
func NewOllamaClient(baseURL string, options ...OllamaOption) *OllamaClient {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}

	o := &OllamaClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// Models returns the names of the models available on the runtime. It doubles
// as the connectivity check: an error means the runtime is unreachable.
func (o *OllamaClient) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach ollama at %s: %w", o.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model listing returned %s", resp.Status)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode model listing: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Chat runs a chat completion and returns the complete response text.
func (o *OllamaClient) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	return o.chat(ctx, chatRequest{
		Model:    model,
		Messages: messages,
	}, nil)
}

// ChatStream runs a chat completion and calls fn with each content chunk as
// it arrives. It returns the assembled response text. A non-nil error from fn
// aborts the stream and is returned as is.
func (o *OllamaClient) ChatStream(
	ctx context.Context,
	model string,
	messages []Message,
	fn func(content string) error,
) (string, error) {
	return o.chat(ctx, chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}, fn)
}

func (o *OllamaClient) chat(ctx context.Context, chatReq chatRequest, fn func(string) error) (string, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	o.logger.Debug("send chat request",
		slog.String("model", chatReq.Model),
		slog.Int("messages", len(chatReq.Messages)),
		slog.Bool("stream", chatReq.Stream))

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach ollama at %s: %w", o.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bs, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat request returned %s: %s", resp.Status, strings.TrimSpace(string(bs)))
	}

	// The response is a stream of JSON objects, one per chunk, the last one
	// marked done. A non-streaming request produces a single such object.
	dec := json.NewDecoder(resp.Body)
	var full strings.Builder
	for {
		var chunk chatResponse
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return full.String(), fmt.Errorf("failed to decode chat response: %w", err)
		}

		if chunk.Message.Content != "" {
			full.WriteString(chunk.Message.Content)
			if fn != nil {
				if err := fn(chunk.Message.Content); err != nil {
					return full.String(), err
				}
			}
		}
		if chunk.Done {
			break
		}
	}

	return full.String(), nil
}
