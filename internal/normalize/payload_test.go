package normalize

import (
	"reflect"
	"testing"

	"github.com/dealscout/backend/internal/domain"
)

func TestNormalizeStorePayload(t *testing.T) {
	t.Run("groups items by department in insertion order", func(t *testing.T) {
		items := []domain.RawItem{
			{Name: "Gala Apples", Price: "1.99", Department: "Produce"},
			{Name: "Chicken Thighs", Price: "3.99", PriceTag: "lb", Department: "Meat"},
			{Name: "Bananas", Price: "0.69", PriceTag: "lb", Department: "Produce"},
		}

		payload := NormalizeStorePayload(items, "Farm Boy")

		if payload.Store != "Farm Boy" {
			t.Errorf("Store = %q, want Farm Boy", payload.Store)
		}
		if len(payload.Categories) != 2 {
			t.Fatalf("categories = %d, want 2", len(payload.Categories))
		}
		if payload.Categories[0].Name != "Produce" || payload.Categories[1].Name != "Meat" {
			t.Errorf("category order = [%s, %s], want [Produce, Meat]",
				payload.Categories[0].Name, payload.Categories[1].Name)
		}
		if len(payload.Categories[0].Products) != 2 {
			t.Errorf("Produce products = %d, want 2", len(payload.Categories[0].Products))
		}
	})

	t.Run("missing department defaults to Other", func(t *testing.T) {
		payload := NormalizeStorePayload([]domain.RawItem{
			{Name: "Mystery Item", Price: "2.49"},
		}, "Produce Depot")

		if len(payload.Categories) != 1 || payload.Categories[0].Name != "Other" {
			t.Fatalf("categories = %+v, want single Other category", payload.Categories)
		}
	})

	t.Run("keeps only the primary flyer version", func(t *testing.T) {
		items := []domain.RawItem{
			{Name: "Strip Loin", Price: "9.99", Version: "Flyer Version 1", Department: "Meat"},
			{Name: "Strip Loin", Price: "9.99", Version: "Flyer Version 2", Department: "Meat"},
		}

		payload := NormalizeStorePayload(items, "Metro Market")

		if got := payload.ProductCount(); got != 1 {
			t.Errorf("product count = %d, want 1 after version dedup", got)
		}
	})

	t.Run("builds description from optional fields in order", func(t *testing.T) {
		payload := NormalizeStorePayload([]domain.RawItem{
			{
				Name:     "Vine Tomatoes",
				Price:    "2.99",
				Brand:    "Backyard",
				SubText:  "on the vine",
				Size:     "907 g",
				PerText:  "$6.59/kg",
				Location: "Ontario",
			},
		}, "Farm Boy")

		want := "Backyard, on the vine, 907 g, $6.59/kg, Origin: Ontario"
		got := payload.Categories[0].Products[0].Description
		if got != want {
			t.Errorf("description = %q, want %q", got, want)
		}
	})

	t.Run("derives date range from first item", func(t *testing.T) {
		payload := NormalizeStorePayload([]domain.RawItem{
			{Name: "Leeks", Price: "1.99", ValidFrom: "2025-03-06", ValidTo: "2025-03-12"},
		}, "Farm Boy")

		if payload.Date != "Mar 06 - Mar 12, 2025" {
			t.Errorf("date = %q, want Mar 06 - Mar 12, 2025", payload.Date)
		}
	})

	t.Run("unparseable dates fall back to Current Flyer", func(t *testing.T) {
		tests := [][]domain.RawItem{
			{{Name: "Leeks", Price: "1.99", ValidFrom: "next week", ValidTo: "2025-03-12"}},
			{{Name: "Leeks", Price: "1.99"}},
			{},
		}
		for _, items := range tests {
			payload := NormalizeStorePayload(items, "Farm Boy")
			if payload.Date != domain.DefaultDate {
				t.Errorf("date = %q, want %q", payload.Date, domain.DefaultDate)
			}
		}
	})

	t.Run("normalizes prices per item", func(t *testing.T) {
		payload := NormalizeStorePayload([]domain.RawItem{
			{Name: "Croissants", Price: "12.00", PriceTag: "pkg", SubText: "6 pack", Department: "Bakery"},
		}, "Farm Boy")

		p := payload.Categories[0].Products[0]
		if p.Price != "$12.00" || p.Unit != domain.UnitPack {
			t.Errorf("price/unit = %q/%q, want $12.00/pack", p.Price, p.Unit)
		}
		if p.UnitPrice == nil || *p.UnitPrice != 2.00 {
			t.Errorf("unit price = %v, want 2.00", p.UnitPrice)
		}
	})

	t.Run("deterministic for identical input", func(t *testing.T) {
		items := []domain.RawItem{
			{Name: "A", Price: "1.00", Department: "Produce"},
			{Name: "B", Price: "2.00", Department: "Dairy"},
			{Name: "C", Price: "3.00", Department: "Produce"},
		}
		first := NormalizeStorePayload(items, "Farm Boy")
		second := NormalizeStorePayload(items, "Farm Boy")
		if !reflect.DeepEqual(first, second) {
			t.Error("identical input produced different payloads")
		}
	})
}
