// Package normalize converts heterogeneous per-store promotional records
// into the canonical product schema with derived unit pricing.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dealscout/backend/internal/domain"
)

// Package-level compiled regex patterns for performance
var (
	numericPriceRegex      = regexp.MustCompile(`\$?(\d+\.\d+|\d+)`)
	explicitUnitPriceRegex = regexp.MustCompile(`\$(\d+\.\d+|\d+)/(kg|lb)`)
	packCountRegex         = regexp.MustCompile(`(?i)(\d+)\s*(?:pack|pk|bundle)`)
)

// priceTagUnits maps store-provided unit codes to the canonical vocabulary.
// Unmapped tags fall back to "each".
var priceTagUnits = map[string]string{
	"ea":    domain.UnitEach,
	"lb":    domain.UnitLb,
	"kg":    domain.UnitKg,
	"100g":  domain.Unit100g,
	"pkg":   domain.UnitPack,
	"Bag":   domain.UnitBag,
	"dozen": domain.UnitDozen,
}

// unitSuffixPatterns is scanned in order against the price text and then the
// description. First match wins; order is significant ("/each" before "each").
var unitSuffixPatterns = []struct {
	pattern *regexp.Regexp
	unit    string
}{
	{regexp.MustCompile(`(?i)/lb`), domain.UnitLb},
	{regexp.MustCompile(`(?i)/kg`), domain.UnitKg},
	{regexp.MustCompile(`(?i)/100g`), domain.Unit100g},
	{regexp.MustCompile(`(?i)/each`), domain.UnitEach},
	{regexp.MustCompile(`(?i)each`), domain.UnitEach},
	{regexp.MustCompile(`(?i)/pack`), domain.UnitPack},
	{regexp.MustCompile(`(?i)/bundle`), domain.UnitBundle},
}

// NormalizePrice converts a raw (price text, unit tag, description) triple
// into a canonical (price, unit, unit price) tuple.
//
// An unparseable numeric price is not an error: the raw text comes back as
// the price with unit "each" and a nil unit price, so the record stays
// searchable by name and description.
func NormalizePrice(priceText, priceTag, description string) (string, string, *float64) {
	priceText = strings.TrimSpace(priceText)

	match := numericPriceRegex.FindStringSubmatch(priceText)
	if match == nil {
		return priceText, domain.UnitEach, nil
	}
	numericPrice, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return priceText, domain.UnitEach, nil
	}
	price := "$" + match[1]

	unit := resolveUnit(priceTag, priceText, description)
	unitPrice := numericPrice

	// An explicit $X.XX/kg or $X.XX/lb annotation in the description is
	// store-authored and more reliable than a re-derivation from the listed
	// price. Within the lb/kg pair a differing annotation also overrides the
	// unit itself; other units keep their unit and only adopt the value.
	if m := explicitUnitPriceRegex.FindStringSubmatch(description); m != nil {
		if explicit, err := strconv.ParseFloat(m[1], 64); err == nil {
			explicitUnit := m[2]
			switch {
			case unit == domain.UnitLb && explicitUnit == domain.UnitKg:
				unitPrice = explicit
				unit = domain.UnitKg
			case unit == domain.UnitKg && explicitUnit == domain.UnitLb:
				unitPrice = explicit
				unit = domain.UnitLb
			default:
				unitPrice = explicit
			}
		}
	}

	// Multi-packs: divide down to a true per-item price. The listed total
	// price is left unchanged.
	if unit == domain.UnitPack || unit == domain.UnitBundle {
		if m := packCountRegex.FindStringSubmatch(description); m != nil {
			if count, err := strconv.Atoi(m[1]); err == nil && count > 0 {
				unitPrice = unitPrice / float64(count)
			}
		}
	}

	// A listed price of zero carries no per-unit signal.
	if unitPrice <= 0 {
		return price, unit, nil
	}
	return price, unit, &unitPrice
}

// resolveUnit determines the canonical unit: the explicit store tag wins,
// otherwise suffix patterns in the price text and then the description. The
// description is only consulted when the price text yields "each".
func resolveUnit(priceTag, priceText, description string) string {
	if priceTag != "" {
		if unit, ok := priceTagUnits[priceTag]; ok {
			return unit
		}
		return domain.UnitEach
	}
	unit := domain.UnitEach
	for _, p := range unitSuffixPatterns {
		if p.pattern.MatchString(priceText) {
			unit = p.unit
			break
		}
	}
	if unit == domain.UnitEach && description != "" {
		for _, p := range unitSuffixPatterns {
			if p.pattern.MatchString(description) {
				unit = p.unit
				break
			}
		}
	}
	return unit
}
