package usecase

import (
	"context"
	"log"
	"sort"

	"github.com/dealscout/backend/internal/domain"
	"github.com/dealscout/backend/internal/normalize"
)

// IngestService normalizes scraped flyer items and loads them into the
// deal index.
type IngestService struct {
	index domain.DealIndex
}

// NewIngestService creates an ingest service with dependencies
func NewIngestService(index domain.DealIndex) *IngestService {
	return &IngestService{index: index}
}

// IngestStore normalizes one store's raw items and replaces its indexed
// records. The returned payload reflects what was sent to the index; a
// PartialFailureError means some products were skipped but the rest landed.
func (s *IngestService) IngestStore(ctx context.Context, storeName string, items []domain.RawItem) (domain.StorePayload, error) {
	payload := normalize.NormalizeStorePayload(items, storeName)
	if payload.ProductCount() == 0 {
		return payload, domain.ErrEmptyPayload
	}

	log.Printf("[INGEST] %s: %d raw items normalized to %d products in %d categories",
		storeName, len(items), payload.ProductCount(), len(payload.Categories))

	if err := s.index.UpsertStore(ctx, payload); err != nil {
		if partial, ok := domain.IsPartialFailure(err); ok {
			log.Printf("[INGEST] %s: %d products skipped during indexing", storeName, partial.Failed)
			return payload, err
		}
		return payload, err
	}
	return payload, nil
}

// IngestAll loads every store in turn, in store-name order so runs are
// reproducible, continuing past per-store failures. It returns the names of
// stores that were indexed, at least partially.
func (s *IngestService) IngestAll(ctx context.Context, batches map[string][]domain.RawItem) []string {
	stores := make([]string, 0, len(batches))
	for storeName := range batches {
		stores = append(stores, storeName)
	}
	sort.Strings(stores)

	var loaded []string
	for _, storeName := range stores {
		_, err := s.IngestStore(ctx, storeName, batches[storeName])
		if err != nil {
			if _, ok := domain.IsPartialFailure(err); !ok {
				log.Printf("[INGEST] %s failed: %v", storeName, err)
				continue
			}
		}
		loaded = append(loaded, storeName)
	}
	return loaded
}
