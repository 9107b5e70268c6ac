// Command ingest loads scraped flyer items into the deal index and runs a
// sample query to verify the data landed. With -store it loads one file
// into the named store; without it each file becomes its own store, named
// after the file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dealscout/backend/config"
	"github.com/dealscout/backend/internal/domain"
	"github.com/dealscout/backend/internal/infrastructure/embed"
	"github.com/dealscout/backend/internal/infrastructure/qdrant"
	"github.com/dealscout/backend/internal/usecase"
)

func main() {
	store := flag.String("store", "", `store name (e.g. "Metro Market"); requires exactly one file`)
	sample := flag.String("sample", "fresh vegetables", "sample query to run after loading")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall ingest timeout")
	flag.Parse()

	if flag.NArg() == 0 || (*store != "" && flag.NArg() != 1) {
		fmt.Fprintf(os.Stderr, "usage: %s [-store <name>] [-sample <query>] <items.json> [more.json ...]\n", os.Args[0])
		os.Exit(2)
	}

	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Index.Type == "memory" {
		log.Fatalf("The memory index does not persist; set DEALSCOUT_INDEX_TYPE=qdrant to ingest")
	}

	batches := make(map[string][]domain.RawItem)
	for _, path := range flag.Args() {
		items, err := readItems(path)
		if err != nil {
			log.Printf("Skipping %s: %v", path, err)
			continue
		}
		name := strings.TrimSpace(*store)
		if name == "" {
			name = storeNameFromPath(path)
		}
		log.Printf("Read %d raw items from %s for %s", len(items), path, name)
		if _, exists := batches[name]; exists {
			log.Printf("WARNING: multiple files map to store %q, merging their items", name)
		}
		batches[name] = append(batches[name], items...)
	}
	if len(batches) == 0 {
		log.Fatalf("No readable item files")
	}

	embedder := embed.NewCachedEmbedder(buildEmbedder(cfg), cfg.Embedder.CacheTTL)
	index := qdrant.New(qdrant.Config{
		URL:     cfg.Index.Qdrant.URL,
		APIKey:  cfg.Index.Qdrant.APIKey,
		Timeout: cfg.Index.Qdrant.Timeout,
	}, embedder)
	ingest := usecase.NewIngestService(index)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	loaded := ingest.IngestAll(ctx, batches)
	if len(loaded) == 0 {
		log.Fatalf("No stores were loaded")
	}
	fmt.Printf("Loaded %d of %d stores: %s\n", len(loaded), len(batches), strings.Join(loaded, ", "))

	for _, storeName := range loaded {
		hits, err := index.Query(ctx, storeName, *sample, 3)
		if err != nil {
			log.Printf("Sample query failed for %s: %v", storeName, err)
			continue
		}
		fmt.Printf("\nSample query results for %q at %s:\n", *sample, storeName)
		for i, hit := range hits {
			fmt.Printf("%d. %s - %s\n", i+1, hit.Product.Name, hit.Product.Price)
			if hit.Product.Description != "" {
				fmt.Printf("   %s\n", hit.Product.Description)
			}
		}
	}
}

// readItems decodes a scraper output file into raw flyer items
func readItems(path string) ([]domain.RawItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var items []domain.RawItem
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}

	// Some scrapers wrap the items in an envelope.
	var wrapped struct {
		Items []domain.RawItem `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Items, nil
}

// storeNameFromPath turns "metro_market.json" into "Metro Market"
func storeNameFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}
	return strings.Join(words, " ")
}

func buildEmbedder(cfg *config.Config) domain.Embedder {
	if cfg.Embedder.Type == "openai" {
		return embed.NewClient(embed.ClientConfig{
			BaseURL:      cfg.Embedder.BaseURL,
			APIKey:       cfg.Embedder.APIKey,
			Model:        cfg.Embedder.Model,
			Timeout:      cfg.Embedder.Timeout,
			RequestsPerS: cfg.Embedder.RequestsPerS,
		})
	}
	return embed.NewHashingEmbedder(0)
}

func init() {
	log.SetFlags(log.Ldate | log.Ltime)
	log.SetOutput(os.Stdout)
}
