package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/dealscout/backend/config"
	httpDelivery "github.com/dealscout/backend/internal/delivery/http"
	"github.com/dealscout/backend/internal/domain"
	"github.com/dealscout/backend/internal/infrastructure/ai"
	"github.com/dealscout/backend/internal/infrastructure/embed"
	"github.com/dealscout/backend/internal/infrastructure/memindex"
	"github.com/dealscout/backend/internal/infrastructure/qdrant"
	"github.com/dealscout/backend/internal/usecase"
)

func main() {
	// Load configuration
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting DealScout Backend v1.0.0")
	log.Printf("Environment: %s", cfg.Server.Environment)
	log.Printf("Port: %s", cfg.Server.Port)
	log.Printf("Index Type: %s", cfg.Index.Type)
	log.Printf("Embedder Type: %s", cfg.Embedder.Type)

	// Initialize infrastructure dependencies
	embedder := buildEmbedder(cfg)
	index := buildIndex(cfg, embedder)

	var generator domain.Generator = ai.NewClient(ai.ClientConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	})
	if cfg.AI.APIKey == "" {
		log.Printf("WARNING: AI API key not configured - chat answers will fail")
	}

	// Initialize usecase layer
	searchService := usecase.NewSearchService(index, usecase.SearchConfig{
		PerStoreTimeout: cfg.Search.PerStoreTimeout,
		OverallTimeout:  cfg.Search.OverallTimeout,
		DefaultLimit:    cfg.Search.DefaultLimit,
	})
	answerService := usecase.NewAnswerService(searchService, generator)

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(searchService, answerService)

	// Setup router
	router := httpDelivery.SetupRouter(cfg, handler)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Server listening on %s", addr)

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// buildEmbedder wires the configured embedding backend behind a TTL cache
func buildEmbedder(cfg *config.Config) domain.Embedder {
	var base domain.Embedder
	switch cfg.Embedder.Type {
	case "openai":
		base = embed.NewClient(embed.ClientConfig{
			BaseURL:      cfg.Embedder.BaseURL,
			APIKey:       cfg.Embedder.APIKey,
			Model:        cfg.Embedder.Model,
			Timeout:      cfg.Embedder.Timeout,
			RequestsPerS: cfg.Embedder.RequestsPerS,
		})
		log.Printf("Embeddings: %s via %s", cfg.Embedder.Model, cfg.Embedder.BaseURL)
	default:
		base = embed.NewHashingEmbedder(0)
		log.Printf("Embeddings: local hashing embedder (%d dimensions)", base.Dimension())
	}
	return embed.NewCachedEmbedder(base, cfg.Embedder.CacheTTL)
}

// buildIndex wires the configured deal index backend
func buildIndex(cfg *config.Config, embedder domain.Embedder) domain.DealIndex {
	if cfg.Index.Type == "qdrant" {
		log.Printf("Deal index: Qdrant at %s", cfg.Index.Qdrant.URL)
		return qdrant.New(qdrant.Config{
			URL:     cfg.Index.Qdrant.URL,
			APIKey:  cfg.Index.Qdrant.APIKey,
			Timeout: cfg.Index.Qdrant.Timeout,
		}, embedder)
	}
	log.Printf("Deal index: in-memory")
	return memindex.New(embedder, 0)
}

func init() {
	// Set log flags for better debugging
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}
