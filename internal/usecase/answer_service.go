package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dealscout/backend/internal/domain"
)

// categoryKeywords maps a broad grocery category to the words that signal
// it, both in user queries and in product names and descriptions.
var categoryKeywords = map[string][]string{
	"fruit":     {"fruit", "apple", "orange", "banana", "pear", "berry", "berries", "pineapple", "melon"},
	"vegetable": {"vegetable", "vegetables", "veggie", "veggies", "carrot", "potato", "tomato", "lettuce", "onion"},
	"meat":      {"meat", "chicken", "beef", "pork", "steak", "ground", "turkey", "lamb"},
	"dairy":     {"dairy", "milk", "cheese", "yogurt", "butter", "cream"},
	"bakery":    {"bakery", "bread", "bun", "roll", "pastry", "cake"},
}

// comparisonKeywords mark a query as asking for a price comparison rather
// than a deal summary.
var comparisonKeywords = []string{
	"compare", "comparison", "versus", "vs", "better price",
	"cheaper", "best deal", "better deal",
}

// AnswerService turns retrieval results into natural-language answers
// through a Generator.
type AnswerService struct {
	search    *SearchService
	generator domain.Generator
}

// NewAnswerService creates an answer service with dependencies
func NewAnswerService(search *SearchService, generator domain.Generator) *AnswerService {
	return &AnswerService{search: search, generator: generator}
}

// Chat answers a free-form question about deals. Results are narrowed by a
// detected grocery category and by the caller's store selection before the
// prompt is built. When nothing matches, a canned suggestion is returned
// without calling the generator.
func (s *AnswerService) Chat(ctx context.Context, query string, selectedStores []string) (string, []domain.ScoredProduct, error) {
	results, err := s.search.Search(ctx, query, "", 0)
	if err != nil {
		return "", nil, err
	}

	if category := detectCategory(query); category != "" {
		if filtered := filterByCategory(results, category); len(filtered) > 0 {
			results = filtered
		}
	}
	if len(selectedStores) > 0 {
		results = filterByStores(results, selectedStores)
	}

	if len(results) == 0 {
		return noResultsMessage(query), []domain.ScoredProduct{}, nil
	}

	var prompt string
	if isComparisonQuery(query) {
		prompt = fmt.Sprintf(`I want to compare prices for grocery items matching: %q

Please analyze these results and provide a clear comparison of prices. Focus on:
1. Which store has the better deal for similar items
2. Consider unit prices ($/kg, $/lb) for accurate comparisons
3. Highlight any significant price differences
4. Recommend the best overall value

Format your response in a clear, easy-to-read way with headings and bullet points.`, query)
	} else {
		prompt = fmt.Sprintf(`I'm looking for information about grocery deals matching: %q

Please provide a helpful summary of these deals. Focus on:
1. Which stores have the best deals
2. Price comparisons between stores
3. Unit prices where available
4. Any special offers or discounts
5. Recommendations for the best value

Format your response in a clear, easy-to-read way with headings and bullet points.`, query)
	}

	answer, err := s.generator.Generate(ctx, prompt+"\n\nHere are the relevant grocery deals I found:\n"+formatResultsForPrompt(results))
	if err != nil {
		return "", nil, err
	}
	return answer, results, nil
}

// Compare answers a price comparison for one item. Hits are kept only when
// every word of the item appears in the product name or description.
func (s *AnswerService) Compare(ctx context.Context, item string) (string, []domain.ScoredProduct, error) {
	results, err := s.search.Search(ctx, item, "", 0)
	if err != nil {
		return "", nil, err
	}

	if filtered := filterByItemKeywords(results, item); len(filtered) > 0 {
		results = filtered
	}
	if len(results) == 0 {
		return noResultsMessage(item), []domain.ScoredProduct{}, nil
	}

	prompt := fmt.Sprintf(`I want to compare prices for %q across different grocery stores.

Please analyze these results and provide a detailed price comparison. Focus on:
1. Which store has the best deal for this item
2. Compare unit prices ($/kg, $/lb) when available for accurate comparisons
3. Highlight any significant price differences between stores
4. Consider product quality or features if mentioned in the descriptions
5. Recommend the best overall value

Format your response in a clear, easy-to-read way with headings and bullet points.
Include a "Best Deal" section at the end with your recommendation.`, item)

	answer, err := s.generator.Generate(ctx, prompt+"\n\nHere are the relevant grocery deals I found:\n"+formatResultsForPrompt(results))
	if err != nil {
		return "", nil, err
	}
	return answer, results, nil
}

// detectCategory returns the first category whose keywords appear in the
// query, or an empty string.
func detectCategory(query string) string {
	lower := strings.ToLower(query)
	// Fixed order keeps detection deterministic when keywords overlap.
	for _, category := range []string{"fruit", "vegetable", "meat", "dairy", "bakery"} {
		for _, keyword := range categoryKeywords[category] {
			if strings.Contains(lower, keyword) {
				return category
			}
		}
	}
	return ""
}

func filterByCategory(results []domain.ScoredProduct, category string) []domain.ScoredProduct {
	keywords := categoryKeywords[category]
	var filtered []domain.ScoredProduct
	for _, r := range results {
		name := strings.ToLower(r.Name)
		desc := strings.ToLower(r.Description)
		cat := strings.ToLower(r.Category)

		matches := strings.Contains(cat, category)
		// Produce sections hold vegetables without naming them as such.
		if category == "vegetable" && strings.Contains(cat, "produce") {
			matches = true
		}
		if !matches {
			for _, keyword := range keywords {
				if strings.Contains(name, keyword) || strings.Contains(desc, keyword) {
					matches = true
					break
				}
			}
		}
		if matches {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func filterByStores(results []domain.ScoredProduct, stores []string) []domain.ScoredProduct {
	wanted := make(map[string]bool, len(stores))
	for _, store := range stores {
		wanted[strings.ToLower(store)] = true
	}
	filtered := make([]domain.ScoredProduct, 0, len(results))
	for _, r := range results {
		if wanted[strings.ToLower(r.Store)] {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func filterByItemKeywords(results []domain.ScoredProduct, item string) []domain.ScoredProduct {
	keywords := strings.Fields(strings.ToLower(item))
	var filtered []domain.ScoredProduct
	for _, r := range results {
		name := strings.ToLower(r.Name)
		desc := strings.ToLower(r.Description)
		all := true
		for _, keyword := range keywords {
			if !strings.Contains(name, keyword) && !strings.Contains(desc, keyword) {
				all = false
				break
			}
		}
		if all {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func isComparisonQuery(query string) bool {
	lower := strings.ToLower(query)
	for _, keyword := range comparisonKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func noResultsMessage(term string) string {
	return fmt.Sprintf(`I couldn't find any specific deals for '%s' in our database.

Here are some suggestions:
1. Try searching for a more general category like "vegetables", "fruit", "meat", or "dairy"
2. Check if the item is spelled correctly
3. The item might not be on sale at the moment in our tracked stores
4. Try searching for a similar item that might be available

Would you like information about other grocery deals instead?`, term)
}

type promptItem struct {
	Name        string `json:"name"`
	Price       string `json:"price"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
	UnitPrice   string `json:"unit_price"`
}

type promptStore struct {
	Name  string       `json:"name"`
	Items []promptItem `json:"items"`
}

// formatResultsForPrompt renders results grouped by store, as a JSON block
// for the model to parse plus a markdown listing for grounding. Store order
// follows first appearance in the results.
func formatResultsForPrompt(results []domain.ScoredProduct) string {
	if len(results) == 0 {
		return "No results found."
	}

	var order []string
	grouped := make(map[string][]domain.ScoredProduct)
	for _, r := range results {
		store := r.Store
		if store == "" {
			store = "Unknown Store"
		}
		if _, seen := grouped[store]; !seen {
			order = append(order, store)
		}
		grouped[store] = append(grouped[store], r)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d items from %d stores.\n\n", len(results), len(order))

	stores := make([]promptStore, 0, len(order))
	for _, store := range order {
		ps := promptStore{Name: store}
		for _, r := range grouped[store] {
			item := promptItem{
				Name:        r.Name,
				Price:       r.Price,
				Description: r.Description,
				Unit:        r.Unit,
				UnitPrice:   "N/A",
			}
			if r.UnitPrice != nil {
				item.UnitPrice = fmt.Sprintf("%.2f", *r.UnitPrice)
			}
			ps.Items = append(ps.Items, item)
		}
		stores = append(stores, ps)
	}
	b.WriteString("## Structured Data\n```\n")
	if data, err := json.MarshalIndent(map[string]any{"stores": stores}, "", "  "); err == nil {
		b.Write(data)
	}
	b.WriteString("\n```\n\n")

	b.WriteString("## Human-Readable Format\n\n")
	for _, store := range order {
		fmt.Fprintf(&b, "### %s\n", store)
		for _, r := range grouped[store] {
			fmt.Fprintf(&b, "- **%s**: %s", r.Name, r.Price)
			if r.UnitPrice != nil {
				fmt.Fprintf(&b, " ($%.2f/%s)", *r.UnitPrice, r.Unit)
			}
			if r.Description != "" {
				fmt.Fprintf(&b, "\n  %s", r.Description)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
