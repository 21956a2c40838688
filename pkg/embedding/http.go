package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPConfig holds configuration for the HTTP embedding backend
type HTTPConfig struct {
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// HTTPEmbedder generates embeddings through an Ollama-compatible HTTP API
type HTTPEmbedder struct {
	client     *http.Client
	baseURL    string
	model      string
	dimensions int
}

// NewHTTPEmbedder creates an embedder backed by an HTTP embedding service
func NewHTTPEmbedder(cfg HTTPConfig) *HTTPEmbedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEmbedder{
		client:     &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Generate requests embeddings for a batch of texts.
// The backend must return one vector per input in order; anything else
// fails the whole batch.
func (e *HTTPEmbedder) Generate(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embedding backend returned %d: %s", resp.StatusCode, string(msg))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}

	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding backend returned %d vectors for %d inputs", len(parsed.Embeddings), len(texts))
	}
	for i, vec := range parsed.Embeddings {
		if e.dimensions > 0 && len(vec) != e.dimensions {
			return nil, fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(vec), e.dimensions)
		}
	}

	return parsed.Embeddings, nil
}

// Dimensions returns the configured vector dimensionality
func (e *HTTPEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns the model identifier
func (e *HTTPEmbedder) Model() string {
	return e.model
}

// Close is a no-op for the HTTP backend
func (e *HTTPEmbedder) Close() error {
	return nil
}

// Ping checks backend reachability by embedding a single short text
func (e *HTTPEmbedder) Ping(ctx context.Context) error {
	_, err := e.Generate(ctx, []string{"ping"})
	return err
}
