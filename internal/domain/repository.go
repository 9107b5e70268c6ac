package domain

import (
	"context"
	"strings"
)

// Embedder converts free text into a vector representation. Implementations
// may call a remote service and must honor the context deadline.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// DealIndex is the store-partitioned vector index contract. One partition
// (collection or store tag, depending on backend) holds one store's products.
type DealIndex interface {
	// UpsertStore replaces a store's partition: delete everything tagged with
	// the store, then insert the payload. A failed delete is logged, not
	// fatal; partial insert failure surfaces as *PartialFailureError.
	UpsertStore(ctx context.Context, payload StorePayload) error

	// Query embeds queryText and returns up to limit hits from the store's
	// partition ordered by ascending distance. A missing store or an empty
	// partition yields an empty slice and a nil error.
	Query(ctx context.Context, store, queryText string, limit int) ([]Hit, error)

	// ListStores enumerates the canonical names of stores that currently
	// have deal data. Malformed entries are skipped; an uninitialized
	// backend yields an empty slice and a nil error.
	ListStores(ctx context.Context) ([]string, error)
}

// Generator produces a natural-language answer for a prompt. The single
// fixed capability replaces provider-specific call shapes.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// collectionSuffix marks a backend collection as deal data.
const collectionSuffix = "_deals"

// CollectionName derives the backend collection name for a store:
// lowercase, spaces to underscores, "_deals" suffix.
func CollectionName(store string) string {
	s := strings.TrimSpace(store)
	return strings.ReplaceAll(strings.ToLower(s), " ", "_") + collectionSuffix
}

// StoreFromCollection reverses CollectionName, returning the title-cased
// store name and whether the collection holds deal data at all.
func StoreFromCollection(collection string) (string, bool) {
	if !strings.HasSuffix(collection, collectionSuffix) {
		return "", false
	}
	slug := strings.TrimSuffix(collection, collectionSuffix)
	if slug == "" {
		return "", false
	}
	words := strings.Split(slug, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " "), true
}
