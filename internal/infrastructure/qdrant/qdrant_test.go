package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dealscout/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

func (s *stubEmbedder) Dimension() int { return len(s.vector) }

func payloadFixture() domain.StorePayload {
	return domain.StorePayload{
		Store: "Food Basics",
		Date:  "Mar 06 - Mar 12, 2025",
		Categories: []domain.Category{
			{Name: "Produce", Products: []domain.Product{
				{Name: "Gala Apples", Price: "1.99", Unit: domain.UnitLb, Category: "Produce", Store: "Food Basics"},
				{Name: "Roma Tomatoes", Price: "2.49", Unit: domain.UnitLb, Category: "Produce", Store: "Food Basics"},
			}},
		},
	}
}

// recorder collects requests by method+path so tests can assert call order
// without caring about the absolute sequence of retries.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req.Method+" "+req.URL.Path)
}

func (r *recorder) has(call string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c == call {
			return true
		}
	}
	return false
}

func TestUpsertStore_CreatesCollectionAndInsertsPoints(t *testing.T) {
	rec := &recorder{}
	var inserted []point

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/collections/food_basics_deals":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodGet && r.URL.Path == "/collections/food_basics_deals":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/food_basics_deals":
			assert.Equal(t, "secret", r.Header.Get("api-key"))

			var body map[string]json.RawMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Contains(t, body, "vectors")
			assert.Len(t, body, 1, "create-collection body must carry only schema-defined keys")
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/food_basics_deals/points":
			var body struct {
				Points []point `json:"points"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			inserted = append(inserted, body.Points...)
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	index := New(Config{URL: server.URL, APIKey: "secret"}, &stubEmbedder{vector: []float32{1, 0, 0}})
	err := index.UpsertStore(context.Background(), payloadFixture())
	require.NoError(t, err)

	require.Len(t, inserted, 2)
	assert.Equal(t, "Gala Apples", inserted[0].Payload["name"])
	assert.Equal(t, "Food Basics", inserted[0].Payload["store"])
	assert.NotEmpty(t, inserted[0].ID)
	assert.True(t, rec.has("PUT /collections/food_basics_deals"))
}

func TestUpsertStore_DimensionMismatchRecreates(t *testing.T) {
	// The collection drop fails, the filtered delete succeeds, and the
	// surviving collection reports a stale vector size.
	deletes := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/collections/food_basics_deals":
			deletes++
			if deletes == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && r.URL.Path == "/collections/food_basics_deals/points/delete":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/collections/food_basics_deals":
			json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]any{
					"config": map[string]any{
						"params": map[string]any{
							"vectors": map[string]any{"size": 768},
						},
					},
				},
			})
		case r.Method == http.MethodPut:
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	index := New(Config{URL: server.URL}, &stubEmbedder{vector: []float32{1, 0, 0}})
	err := index.UpsertStore(context.Background(), payloadFixture())
	require.NoError(t, err)
	assert.Equal(t, 2, deletes)
}

func TestUpsertStore_HalvesFailingBatches(t *testing.T) {
	var singles int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/food_basics_deals/points" {
			var body struct {
				Points []point `json:"points"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if len(body.Points) > 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			singles++
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method == http.MethodGet && r.URL.Path == "/collections/food_basics_deals" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	index := New(Config{URL: server.URL}, &stubEmbedder{vector: []float32{1, 0, 0}})
	err := index.UpsertStore(context.Background(), payloadFixture())
	require.NoError(t, err)
	assert.Equal(t, 2, singles)
}

func TestUpsertStore_ReportsSkippedPoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/food_basics_deals/points" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if r.Method == http.MethodGet && r.URL.Path == "/collections/food_basics_deals" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	index := New(Config{URL: server.URL}, &stubEmbedder{vector: []float32{1, 0, 0}})
	err := index.UpsertStore(context.Background(), payloadFixture())

	partial, ok := domain.IsPartialFailure(err)
	require.True(t, ok)
	assert.Equal(t, 2, partial.Failed)
}

func TestUpsertStore_EmptyPayload(t *testing.T) {
	index := New(Config{URL: "http://unused"}, &stubEmbedder{vector: []float32{1}})
	err := index.UpsertStore(context.Background(), domain.StorePayload{Store: "Metro"})
	assert.ErrorIs(t, err, domain.ErrEmptyPayload)
}

func TestQuery_MapsScoresToDistances(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/metro_deals/points/search", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(3), body["limit"])
		assert.Equal(t, true, body["with_payload"])

		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{
					"score": 0.92,
					"payload": map[string]any{
						"name":       "Whole Chicken",
						"price":      "3.99",
						"unit":       "lb",
						"category":   "Meat",
						"unit_price": 3.99,
					},
				},
				{
					"score":   0.61,
					"payload": map[string]any{"name": "Chicken Broth", "price": "2.49"},
				},
			},
		})
	}))
	defer server.Close()

	index := New(Config{URL: server.URL}, &stubEmbedder{vector: []float32{1, 0, 0}})
	hits, err := index.Query(context.Background(), "Metro", "chicken", 3)
	require.NoError(t, err)

	require.Len(t, hits, 2)
	assert.Equal(t, "Whole Chicken", hits[0].Product.Name)
	assert.Equal(t, "Metro", hits[0].Product.Store)
	assert.InDelta(t, 0.08, hits[0].Distance, 1e-9)
	assert.InDelta(t, 0.39, hits[1].Distance, 1e-9)
	require.NotNil(t, hits[0].Product.UnitPrice)
	assert.InDelta(t, 3.99, *hits[0].Product.UnitPrice, 1e-9)
	// Missing payload fields fall back to defaults.
	assert.Equal(t, domain.UnitEach, hits[1].Product.Unit)
	assert.Equal(t, domain.DefaultDate, hits[1].Product.Date)
}

func TestQuery_MissingCollectionReturnsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	index := New(Config{URL: server.URL}, &stubEmbedder{vector: []float32{1, 0, 0}})
	hits, err := index.Query(context.Background(), "Ghost Store", "apples", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQuery_ServerDownReturnsBackendUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	index := New(Config{URL: server.URL}, &stubEmbedder{vector: []float32{1, 0, 0}})
	_, err := index.Query(context.Background(), "Metro", "apples", 5)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestListStores(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"collections": []map[string]any{
					{"name": "food_basics_deals"},
					{"name": "produce_depot_deals"},
					{"name": "recipes"},
				},
			},
		})
	}))
	defer server.Close()

	index := New(Config{URL: server.URL}, &stubEmbedder{vector: []float32{1}})
	stores, err := index.ListStores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Food Basics", "Produce Depot"}, stores)
}
