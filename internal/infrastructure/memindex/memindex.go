// Package memindex is the embedded DealIndex backend: a single shared
// in-memory collection with a store tag per record and brute-force cosine
// search. Suited to single-process deployments and tests; the qdrant package
// is the remote alternative.
package memindex

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/dealscout/backend/internal/domain"
	"github.com/google/uuid"
)

// defaultOverfetch is the candidate multiplier applied before per-store
// filtering of the shared collection.
const defaultOverfetch = 5

type record struct {
	id      string
	store   string
	product domain.Product
	vector  []float32
}

// Index is a thread-safe shared-collection deal index.
type Index struct {
	embedder  domain.Embedder
	overfetch int

	mutex   sync.RWMutex
	records []record
}

// New creates an empty index backed by the given embedder. A non-positive
// overfetch selects the default.
func New(embedder domain.Embedder, overfetch int) *Index {
	if overfetch <= 0 {
		overfetch = defaultOverfetch
	}
	return &Index{embedder: embedder, overfetch: overfetch}
}

// UpsertStore replaces the store's records: every record tagged with the
// store is dropped, then the payload's products are embedded and inserted
// under fresh identifiers. A product whose embedding fails is logged and
// skipped; the count surfaces as a PartialFailureError.
func (x *Index) UpsertStore(ctx context.Context, payload domain.StorePayload) error {
	products := payload.Products()
	if len(products) == 0 {
		return domain.ErrEmptyPayload
	}

	inserted := make([]record, 0, len(products))
	failed := 0
	for _, product := range products {
		vector, err := x.embedder.Embed(ctx, documentText(product))
		if err != nil {
			log.Printf("[MEMINDEX] embedding failed for %q, skipping: %v", product.Name, err)
			failed++
			continue
		}
		inserted = append(inserted, record{
			id:      uuid.NewString(),
			store:   payload.Store,
			product: product,
			vector:  vector,
		})
	}

	x.mutex.Lock()
	kept := x.records[:0]
	for _, r := range x.records {
		if r.store != payload.Store {
			kept = append(kept, r)
		}
	}
	x.records = append(kept, inserted...)
	x.mutex.Unlock()

	log.Printf("[MEMINDEX] stored %d products for %s", len(inserted), payload.Store)
	if failed > 0 {
		return &domain.PartialFailureError{Op: "memindex upsert " + payload.Store, Failed: failed}
	}
	return nil
}

// Query returns up to limit hits for the store ordered by ascending cosine
// distance. The shared collection is over-fetched before the store filter so
// a store's best matches are not crowded out by other stores' records.
func (x *Index) Query(ctx context.Context, store, queryText string, limit int) ([]domain.Hit, error) {
	if limit <= 0 {
		limit = 5
	}

	vector, err := x.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	x.mutex.RLock()
	type scored struct {
		idx      int
		distance float64
	}
	candidates := make([]scored, 0, len(x.records))
	for i, r := range x.records {
		candidates = append(candidates, scored{idx: i, distance: 1 - dot(r.vector, vector)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})

	if max := limit * x.overfetch; len(candidates) > max {
		candidates = candidates[:max]
	}

	hits := make([]domain.Hit, 0, limit)
	for _, c := range candidates {
		if x.records[c.idx].store != store {
			continue
		}
		hits = append(hits, domain.Hit{Product: x.records[c.idx].product, Distance: c.distance})
		if len(hits) == limit {
			break
		}
	}
	x.mutex.RUnlock()

	return hits, nil
}

// ListStores enumerates stores that currently have records, in first-seen
// order.
func (x *Index) ListStores(ctx context.Context) ([]string, error) {
	x.mutex.RLock()
	defer x.mutex.RUnlock()

	seen := make(map[string]struct{})
	stores := make([]string, 0)
	for _, r := range x.records {
		if _, ok := seen[r.store]; ok {
			continue
		}
		seen[r.store] = struct{}{}
		stores = append(stores, r.store)
	}
	return stores, nil
}

// documentText builds the searchable text for a product, name plus
// description.
func documentText(p domain.Product) string {
	if p.Description == "" {
		return p.Name
	}
	return p.Name + " - " + p.Description
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
