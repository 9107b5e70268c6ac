// Package qdrant is the remote DealIndex backend: one Qdrant collection per
// store, named "<store>_deals", talked to over the REST API. The memindex
// package is the embedded alternative.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/dealscout/backend/internal/domain"
	"github.com/google/uuid"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultBatchSize = 100
	// scrollPageSize bounds the full-scan fallback used when filtered
	// deletes fail.
	scrollPageSize = 256
)

// Index is a per-store-collection deal index backed by a Qdrant server.
type Index struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	embedder   domain.Embedder
	batchSize  int
}

// Config contains connection details for the Qdrant backend.
type Config struct {
	URL       string
	APIKey    string
	Timeout   time.Duration
	BatchSize int
}

// New creates a Qdrant-backed index using the given embedder.
func New(cfg Config, embedder domain.Embedder) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Index{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		embedder:   embedder,
		batchSize:  batch,
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// UpsertStore replaces the store's collection contents. Old records are
// removed first via the delete ladder; a failed delete is logged and not
// fatal, since fresh records carry new identifiers and supersede stale ones.
// Inserts run in batches, halving on failure down to single points; skipped
// points surface as a PartialFailureError.
func (x *Index) UpsertStore(ctx context.Context, payload domain.StorePayload) error {
	products := payload.Products()
	if len(products) == 0 {
		return domain.ErrEmptyPayload
	}

	points := make([]point, 0, len(products))
	failed := 0
	for _, product := range products {
		vector, err := x.embedder.Embed(ctx, documentText(product))
		if err != nil {
			log.Printf("[QDRANT] embedding failed for %q, skipping: %v", product.Name, err)
			failed++
			continue
		}
		points = append(points, point{
			ID:      uuid.NewString(),
			Vector:  vector,
			Payload: productPayload(product),
		})
	}
	if len(points) == 0 {
		return &domain.PartialFailureError{Op: "qdrant upsert " + payload.Store, Failed: failed}
	}

	collection := domain.CollectionName(payload.Store)
	dimension := len(points[0].Vector)

	x.deleteStoreRecords(ctx, collection, payload.Store)

	if err := x.ensureCollection(ctx, collection, dimension); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}

	skipped := x.upsertPoints(ctx, collection, points)
	failed += skipped
	log.Printf("[QDRANT] stored %d products for %s in %s", len(points)-skipped, payload.Store, collection)
	if failed > 0 {
		return &domain.PartialFailureError{Op: "qdrant upsert " + payload.Store, Failed: failed}
	}
	return nil
}

// Query embeds queryText and searches the store's collection, returning up
// to limit hits ordered by ascending distance. A missing collection yields
// an empty slice and a nil error.
func (x *Index) Query(ctx context.Context, store, queryText string, limit int) ([]domain.Hit, error) {
	if limit <= 0 {
		limit = 5
	}

	vector, err := x.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	collection := domain.CollectionName(store)
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	status, err := x.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/search", x.baseURL, collection), req, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	if status == http.StatusNotFound {
		return []domain.Hit{}, nil
	}
	if status >= 300 {
		return nil, fmt.Errorf("%w: search returned status %d", domain.ErrBackendUnavailable, status)
	}

	hits := make([]domain.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		// Qdrant reports cosine similarity as the score.
		hits = append(hits, domain.Hit{
			Product:  productFromPayload(r.Payload, store),
			Distance: 1 - r.Score,
		})
	}
	return hits, nil
}

// ListStores enumerates collections whose names mark them as deal data and
// maps them back to canonical store names. Unparsable entries are skipped;
// an unreachable server surfaces as ErrBackendUnavailable.
func (x *Index) ListStores(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	status, err := x.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/collections", x.baseURL), nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	if status >= 300 {
		return nil, fmt.Errorf("%w: listing returned status %d", domain.ErrBackendUnavailable, status)
	}

	stores := make([]string, 0, len(resp.Result.Collections))
	for _, c := range resp.Result.Collections {
		store, ok := domain.StoreFromCollection(c.Name)
		if !ok {
			continue
		}
		stores = append(stores, store)
	}
	return stores, nil
}

// ensureCollection creates the collection if missing and recreates it when
// the stored vector dimension no longer matches the embedder's.
func (x *Index) ensureCollection(ctx context.Context, collection string, dimension int) error {
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := x.doJSON(ctx, http.MethodGet,
		fmt.Sprintf("%s/collections/%s", x.baseURL, collection), nil, &info)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		if info.Result.Config.Params.Vectors.Size == dimension {
			return nil
		}
		log.Printf("[QDRANT] dimension mismatch for %s (have %d, want %d), recreating",
			collection, info.Result.Config.Params.Vectors.Size, dimension)
		if _, err := x.doJSON(ctx, http.MethodDelete,
			fmt.Sprintf("%s/collections/%s", x.baseURL, collection), nil, nil); err != nil {
			return err
		}
	}

	// Store and date travel in each point's payload; the create body carries
	// only what the collections API defines.
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	status, err = x.doJSON(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s", x.baseURL, collection), body, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("create collection %s returned status %d", collection, status)
	}
	return nil
}

// deleteStoreRecords clears the store's old records. Strategies in
// decreasing order of preference: drop the whole collection, filtered point
// delete, full scroll-scan with chunked delete-by-ID. Total failure leaves
// stale records behind, which fresh identifiers supersede.
func (x *Index) deleteStoreRecords(ctx context.Context, collection, store string) {
	status, err := x.doJSON(ctx, http.MethodDelete,
		fmt.Sprintf("%s/collections/%s", x.baseURL, collection), nil, nil)
	if err == nil && (status < 300 || status == http.StatusNotFound) {
		return
	}
	log.Printf("[QDRANT] collection drop failed for %s (status %d, err %v), trying filtered delete", collection, status, err)

	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "store", "match": map[string]any{"value": store}},
			},
		},
	}
	status, err = x.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/delete?wait=true", x.baseURL, collection), body, nil)
	if err == nil && status < 300 {
		return
	}
	log.Printf("[QDRANT] filtered delete failed for %s (status %d, err %v), trying scan delete", collection, status, err)

	if err := x.scanAndDelete(ctx, collection, store); err != nil {
		log.Printf("[QDRANT] scan delete failed for %s, old records remain: %v", collection, err)
	}
}

// scanAndDelete scrolls the whole collection, keeps IDs whose payload store
// matches, and deletes them in fixed-size chunks.
func (x *Index) scanAndDelete(ctx context.Context, collection, store string) error {
	var offset any
	var ids []string
	for {
		req := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": true,
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					ID      any            `json:"id"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		status, err := x.doJSON(ctx, http.MethodPost,
			fmt.Sprintf("%s/collections/%s/points/scroll", x.baseURL, collection), req, &resp)
		if err != nil {
			return err
		}
		if status == http.StatusNotFound {
			return nil
		}
		if status >= 300 {
			return fmt.Errorf("scroll returned status %d", status)
		}
		for _, p := range resp.Result.Points {
			id, ok := p.ID.(string)
			if !ok {
				continue
			}
			if s, _ := p.Payload["store"].(string); s == store {
				ids = append(ids, id)
			}
		}
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}

	for start := 0; start < len(ids); start += x.batchSize {
		end := start + x.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		body := map[string]any{"points": ids[start:end]}
		status, err := x.doJSON(ctx, http.MethodPost,
			fmt.Sprintf("%s/collections/%s/points/delete?wait=true", x.baseURL, collection), body, nil)
		if err != nil {
			return err
		}
		if status >= 300 {
			return fmt.Errorf("chunked delete returned status %d", status)
		}
	}
	return nil
}

// upsertPoints inserts points in batches, halving a failing batch down to
// single points. Returns the number of points skipped after retries.
func (x *Index) upsertPoints(ctx context.Context, collection string, points []point) int {
	failed := 0
	for start := 0; start < len(points); start += x.batchSize {
		end := start + x.batchSize
		if end > len(points) {
			end = len(points)
		}
		failed += x.upsertBatch(ctx, collection, points[start:end])
	}
	return failed
}

func (x *Index) upsertBatch(ctx context.Context, collection string, batch []point) int {
	body := map[string]any{"points": batch}
	status, err := x.doJSON(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s/points?wait=true", x.baseURL, collection), body, nil)
	if err == nil && status < 300 {
		return 0
	}

	if len(batch) == 1 {
		log.Printf("[QDRANT] point %v skipped after retries (status %d, err %v)", batch[0].Payload["name"], status, err)
		return 1
	}

	mid := len(batch) / 2
	return x.upsertBatch(ctx, collection, batch[:mid]) + x.upsertBatch(ctx, collection, batch[mid:])
}

// doJSON performs one request with the API key header, encoding body and
// decoding the response into out when non-nil. The status code is returned
// alongside transport errors so callers can distinguish 404 from outages.
func (x *Index) doJSON(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func documentText(p domain.Product) string {
	if p.Description == "" {
		return p.Name
	}
	return p.Name + " - " + p.Description
}

func productPayload(p domain.Product) map[string]any {
	payload := map[string]any{
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price,
		"unit":        p.Unit,
		"category":    p.Category,
		"store":       p.Store,
		"date":        p.Date,
		"document":    documentText(p),
	}
	if p.UnitPrice != nil {
		payload["unit_price"] = *p.UnitPrice
	}
	if p.ImageURL != "" {
		payload["image_url"] = p.ImageURL
	}
	return payload
}

func productFromPayload(payload map[string]any, store string) domain.Product {
	p := domain.Product{Store: store, Unit: domain.UnitEach, Date: domain.DefaultDate}
	if v, ok := payload["name"].(string); ok {
		p.Name = v
	}
	if v, ok := payload["description"].(string); ok {
		p.Description = v
	}
	if v, ok := payload["price"].(string); ok {
		p.Price = v
	}
	if v, ok := payload["unit"].(string); ok && v != "" {
		p.Unit = v
	}
	if v, ok := payload["category"].(string); ok {
		p.Category = v
	}
	if v, ok := payload["date"].(string); ok && v != "" {
		p.Date = v
	}
	if v, ok := payload["unit_price"].(float64); ok {
		p.UnitPrice = &v
	}
	if v, ok := payload["image_url"].(string); ok {
		p.ImageURL = v
	}
	return p
}
