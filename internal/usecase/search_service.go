package usecase

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/dealscout/backend/internal/domain"
)

// SearchConfig holds configuration for the search service
type SearchConfig struct {
	PerStoreTimeout time.Duration
	OverallTimeout  time.Duration
	DefaultLimit    int
}

// SearchService runs semantic deal queries against one store or fans out
// across every known store.
type SearchService struct {
	index           domain.DealIndex
	perStoreTimeout time.Duration
	overallTimeout  time.Duration
	defaultLimit    int
}

// NewSearchService creates a search service with dependencies
func NewSearchService(index domain.DealIndex, config SearchConfig) *SearchService {
	perStore := config.PerStoreTimeout
	if perStore == 0 {
		perStore = 10 * time.Second
	}
	overall := config.OverallTimeout
	if overall == 0 {
		overall = 25 * time.Second
	}
	limit := config.DefaultLimit
	if limit == 0 {
		limit = 10
	}
	return &SearchService{
		index:           index,
		perStoreTimeout: perStore,
		overallTimeout:  overall,
		defaultLimit:    limit,
	}
}

// Stores lists the stores that currently have indexed deals. A backend
// failure degrades to an empty list so callers can render "no stores yet".
func (s *SearchService) Stores(ctx context.Context) []string {
	stores, err := s.index.ListStores(ctx)
	if err != nil {
		log.Printf("[SEARCH] listing stores failed: %v", err)
		return []string{}
	}
	return stores
}

// Search returns up to limit products matching the query, scored by
// similarity and sorted best first. An empty store searches every store
// concurrently; a store that fails or times out contributes no results
// rather than failing the whole search.
func (s *SearchService) Search(ctx context.Context, query, store string, limit int) ([]domain.ScoredProduct, error) {
	if query == "" {
		return nil, domain.ErrInvalidRequest
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}

	var merged []domain.ScoredProduct
	if store != "" {
		merged = s.searchStore(ctx, store, query, limit)
	} else {
		merged = s.searchAllStores(ctx, query, limit)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (s *SearchService) searchAllStores(ctx context.Context, query string, limit int) []domain.ScoredProduct {
	stores := s.Stores(ctx)
	if len(stores) == 0 {
		return []domain.ScoredProduct{}
	}

	overallCtx, cancel := context.WithTimeout(ctx, s.overallTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		merged []domain.ScoredProduct
		wg     sync.WaitGroup
	)
	for _, store := range stores {
		wg.Add(1)
		go func(store string) {
			defer wg.Done()
			results := s.searchStore(overallCtx, store, query, limit)
			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
		}(store)
	}
	wg.Wait()
	return merged
}

func (s *SearchService) searchStore(ctx context.Context, store, query string, limit int) []domain.ScoredProduct {
	storeCtx, cancel := context.WithTimeout(ctx, s.perStoreTimeout)
	defer cancel()

	hits, err := s.index.Query(storeCtx, store, query, limit)
	if err != nil {
		log.Printf("[SEARCH] query failed for %s: %v", store, err)
		return nil
	}

	scored := make([]domain.ScoredProduct, 0, len(hits))
	for _, hit := range hits {
		scored = append(scored, domain.ScoredProduct{
			Product:    hit.Product,
			Similarity: 1 - hit.Distance,
		})
	}
	return scored
}
