package normalize

import (
	"strings"
	"time"

	"github.com/dealscout/backend/internal/domain"
)

const defaultCategory = "Other"

// NormalizeStorePayload converts one store's raw scrape payload into the
// canonical store payload: one designated flyer version kept, items grouped
// by department in insertion order, prices normalized per item, and the
// validity date range derived from the first item.
//
// The output is deterministic for identical raw input.
func NormalizeStorePayload(items []domain.RawItem, storeName string) domain.StorePayload {
	storeName = strings.TrimSpace(storeName)

	payload := domain.StorePayload{
		Store: storeName,
		Date:  deriveDateRange(items),
	}

	// Ordered category grouping: a map alone would make category order
	// depend on iteration order, which is not reproducible.
	indexByName := make(map[string]int)

	for _, item := range filterPrimaryVersion(items) {
		department := item.Department
		if department == "" {
			department = defaultCategory
		}

		description := buildDescription(item)
		price, unit, unitPrice := NormalizePrice(item.Price, item.PriceTag, description)

		product := domain.Product{
			Name:        item.Name,
			Description: description,
			Price:       price,
			Unit:        unit,
			UnitPrice:   unitPrice,
			Category:    department,
			Store:       storeName,
			Date:        payload.Date,
			ImageURL:    item.ImageURL,
		}

		idx, ok := indexByName[department]
		if !ok {
			payload.Categories = append(payload.Categories, domain.Category{Name: department})
			idx = len(payload.Categories) - 1
			indexByName[department] = idx
		}
		payload.Categories[idx].Products = append(payload.Categories[idx].Products, product)
	}

	// Categories that ended up empty are dropped. Grouping only creates a
	// category when an item lands in it, so this filters nothing today, but
	// the invariant is part of the payload contract.
	kept := payload.Categories[:0]
	for _, c := range payload.Categories {
		if len(c.Products) > 0 {
			kept = append(kept, c)
		}
	}
	payload.Categories = kept

	return payload
}

// filterPrimaryVersion keeps only one flyer version of the dataset. Raw feeds
// sometimes carry every flyer layout as a separate version of the same
// underlying items; the first non-empty version seen is designated primary
// and all other versions are dropped.
func filterPrimaryVersion(items []domain.RawItem) []domain.RawItem {
	primary := ""
	for _, item := range items {
		if item.Version != "" {
			primary = item.Version
			break
		}
	}
	if primary == "" {
		return items
	}
	filtered := make([]domain.RawItem, 0, len(items))
	for _, item := range items {
		if item.Version == "" || item.Version == primary {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// buildDescription concatenates the optional descriptive fields with a fixed
// separator, skipping empties. Order is significant for display.
func buildDescription(item domain.RawItem) string {
	parts := make([]string, 0, 5)
	if item.Brand != "" {
		parts = append(parts, item.Brand)
	}
	if item.SubText != "" {
		parts = append(parts, item.SubText)
	}
	if item.Size != "" {
		parts = append(parts, item.Size)
	}
	if item.PerText != "" {
		parts = append(parts, item.PerText)
	}
	if item.Location != "" {
		parts = append(parts, "Origin: "+item.Location)
	}
	return strings.Join(parts, ", ")
}

// deriveDateRange formats the first item's validity window as
// "<Mon> <Day> - <Mon> <Day>, <Year>". Any parse failure falls back to the
// default date string.
func deriveDateRange(items []domain.RawItem) string {
	if len(items) == 0 {
		return domain.DefaultDate
	}
	from, err := parseISODate(items[0].ValidFrom)
	if err != nil {
		return domain.DefaultDate
	}
	to, err := parseISODate(items[0].ValidTo)
	if err != nil {
		return domain.DefaultDate
	}
	return from.Format("Jan 02") + " - " + to.Format("Jan 02, 2006")
}

func parseISODate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
