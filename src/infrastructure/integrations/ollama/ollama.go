// Package ollama is a thin HTTP client for a local Ollama instance, covering
// the embedding and generation endpoints the pipeline needs.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"smartassist/src/core/rag"
)

const (
	DefaultBaseURL       = "http://localhost:11434"
	DefaultEmbedModel    = "nomic-embed-text"
	DefaultGenerateModel = "llama3.2"
	DefaultDimensions    = 768
)

// Config holds connection settings. Zero values fall back to the defaults
// above.
type Config struct {
	BaseURL       string
	EmbedModel    string
	GenerateModel string
	Dimensions    int
	Timeout       time.Duration
}

// Client talks to Ollama over its REST API. It implements both
// rag.EmbeddingProvider and rag.GenerationProvider.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	embedModel    string
	generateModel string
	dims          int
}

var (
	_ rag.EmbeddingProvider  = (*Client)(nil)
	_ rag.GenerationProvider = (*Client)(nil)
)

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	if cfg.GenerateModel == "" {
		cfg.GenerateModel = DefaultGenerateModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &Client{
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		baseURL:       cfg.BaseURL,
		embedModel:    cfg.EmbedModel,
		generateModel: cfg.GenerateModel,
		dims:          cfg.Dimensions,
	}
}

// Dimensions returns the embedding dimensionality the client is configured
// for; the vector index is sized to match.
func (c *Client) Dimensions() int {
	return c.dims
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding vector for text. Transport failures and server
// errors wrap rag.ErrEmbeddingUnavailable; responses that cannot be used wrap
// rag.ErrEmbeddingMalformed.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.embedModel, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	resp, err := c.post(ctx, "/api/embeddings", body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: status %d: %s", rag.ErrEmbeddingUnavailable, resp.StatusCode, payload)
		}
		return nil, fmt.Errorf("%w: status %d: %s", rag.ErrEmbeddingMalformed, resp.StatusCode, payload)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrEmbeddingMalformed, err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", rag.ErrEmbeddingMalformed)
	}
	if len(parsed.Embedding) != c.dims {
		return nil, fmt.Errorf("%w: got %d dimensions, expected %d",
			rag.ErrEmbeddingMalformed, len(parsed.Embedding), c.dims)
	}
	return parsed.Embedding, nil
}

// EmbedBatch embeds each text in order. The Ollama embeddings endpoint takes
// one prompt per call, so the batch is a sequential loop; the first failure
// aborts the batch.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		v, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d of %d: %w", i+1, len(texts), err)
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate produces a completion for the prompt. All failures wrap
// rag.ErrGenerationUnavailable; the orchestrator degrades rather than
// distinguishing generation failure modes.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.generateModel,
		System: system,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	resp, err := c.post(ctx, "/api/generate", body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", rag.ErrGenerationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", rag.ErrGenerationUnavailable, resp.StatusCode, payload)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: %v", rag.ErrGenerationUnavailable, err)
	}
	return parsed.Response, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Models lists the model names available on the server. Used by health
// checks to verify connectivity.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from ollama", resp.StatusCode)
	}

	var parsed tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode tags response: %w", err)
	}
	names := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}
