// Package embed provides text embedders backing the deal index: a remote
// OpenAI-compatible client, a deterministic local hashing embedder, and a
// caching wrapper.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dealscout/backend/internal/domain"
	"golang.org/x/time/rate"
)

// Client calls an OpenAI-compatible /embeddings endpoint.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	rateLimiter *rate.Limiter
	// dimension is learned from the first successful response and read by
	// concurrent per-store queries, so access goes through atomics.
	dimension  atomic.Int64
	maxRetries int
}

// ClientConfig configures the remote embeddings client.
type ClientConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	RequestsPerS float64
}

// NewClient creates a rate-limited embeddings client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerS <= 0 {
		cfg.RequestsPerS = 5
	}

	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerS), 10),
		maxRetries:  3,
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text. Transient failures are
// retried with exponential backoff; the dimension is learned from the first
// successful response.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	reqURL := fmt.Sprintf("%s/embeddings", c.baseURL)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		vector, retryable, err := c.embedOnce(ctx, reqURL, text)
		if err == nil {
			c.dimension.CompareAndSwap(0, int64(len(vector)))
			return vector, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		log.Printf("[EMBED] request error (attempt %d): %v", attempt, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(exponentialBackoff(attempt)):
		}
	}

	return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingFailure, lastErr)
}

func (c *Client) embedOnce(ctx context.Context, reqURL, text string) ([]float32, bool, error) {
	body, err := json.Marshal(embeddingRequest{Input: text, Model: c.model})
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("embeddings endpoint returned %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("embeddings endpoint returned %s", resp.Status)
	}

	var out embeddingResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, false, fmt.Errorf("no embedding returned")
	}
	return out.Data[0].Embedding, false, nil
}

// Dimension returns the vector dimensionality, 0 until the first successful
// embed.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// exponentialBackoff returns the delay before retry attempt n.
func exponentialBackoff(attempt int) time.Duration {
	d := 250 * time.Millisecond << uint(attempt-1)
	if d > 4*time.Second {
		d = 4 * time.Second
	}
	return d
}
