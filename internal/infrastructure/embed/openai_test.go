package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dealscout/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(ClientConfig{})

	assert.Equal(t, "https://api.openai.com/v1", client.baseURL)
	assert.Equal(t, "text-embedding-3-small", client.model)
	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.rateLimiter)
	assert.Equal(t, 0, client.Dimension())
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, 1000 * time.Millisecond},
		{10, 4 * time.Second},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
		})
	}
}

func TestEmbed_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "fresh strawberries", req.Input)

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, APIKey: "test-key"})

	vector, err := client.Embed(context.Background(), "fresh strawberries")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
	assert.Equal(t, 3, client.Dimension())
}

func TestEmbed_ConcurrentCallsAgreeOnDimension(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, RequestsPerS: 1000})

	// One goroutine per store is how the cross-store search drives Embed.
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Embed(context.Background(), "fresh vegetables")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 3, client.Dimension())
}

func TestEmbed_RetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1, 0}}},
		})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, RequestsPerS: 1000})

	vector, err := client.Embed(context.Background(), "milk")

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, vector, 2)
}

func TestEmbed_ClientErrorNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, RequestsPerS: 1000})

	_, err := client.Embed(context.Background(), "milk")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmbeddingFailure))
	assert.Equal(t, 1, attempts)
}

func TestHashingEmbedder(t *testing.T) {
	embedder := NewHashingEmbedder(64)
	ctx := context.Background()

	t.Run("deterministic", func(t *testing.T) {
		first, err := embedder.Embed(ctx, "organic whole milk")
		require.NoError(t, err)
		second, err := embedder.Embed(ctx, "organic whole milk")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("normalized to unit length", func(t *testing.T) {
		vector, err := embedder.Embed(ctx, "gala apples product of ontario")
		require.NoError(t, err)

		var norm float64
		for _, v := range vector {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, norm, 1e-5)
	})

	t.Run("zero vector for empty text", func(t *testing.T) {
		vector, err := embedder.Embed(ctx, "")
		require.NoError(t, err)
		for _, v := range vector {
			assert.Zero(t, v)
		}
	})

	t.Run("similar texts score closer than unrelated ones", func(t *testing.T) {
		a, _ := embedder.Embed(ctx, "fresh red apples")
		b, _ := embedder.Embed(ctx, "red apples on sale")
		c, _ := embedder.Embed(ctx, "laundry detergent pods")

		assert.Greater(t, dot(a, b), dot(a, c))
	})
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("second call served from cache", func(t *testing.T) {
		counter := &countingEmbedder{inner: NewHashingEmbedder(32)}
		cached := NewCachedEmbedder(counter, time.Minute)

		first, err := cached.Embed(ctx, "broccoli crowns")
		require.NoError(t, err)
		second, err := cached.Embed(ctx, "broccoli crowns")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, counter.calls)
		assert.Equal(t, 1, cached.Size())
	})

	t.Run("expired entry re-embeds", func(t *testing.T) {
		counter := &countingEmbedder{inner: NewHashingEmbedder(32)}
		cached := NewCachedEmbedder(counter, time.Nanosecond)

		_, err := cached.Embed(ctx, "broccoli crowns")
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
		_, err = cached.Embed(ctx, "broccoli crowns")
		require.NoError(t, err)

		assert.Equal(t, 2, counter.calls)
	})
}

type countingEmbedder struct {
	inner domain.Embedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) Dimension() int { return c.inner.Dimension() }

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
