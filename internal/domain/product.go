package domain

// Product is a canonical deal record after normalization, independent of the
// source store's raw field names.
type Product struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       string   `json:"price"`
	Unit        string   `json:"unit"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	Category    string   `json:"category"`
	Store       string   `json:"store"`
	Date        string   `json:"date"`
	ImageURL    string   `json:"image_url,omitempty"`
}

// Canonical unit vocabulary for Product.Unit.
const (
	UnitEach   = "each"
	UnitLb     = "lb"
	UnitKg     = "kg"
	Unit100g   = "100g"
	UnitPack   = "pack"
	UnitBundle = "bundle"
	UnitBag    = "bag"
	UnitDozen  = "dozen"
)

// DefaultDate is the validity string used when a flyer's date range cannot
// be derived from the raw feed.
const DefaultDate = "Current Flyer"

// RawItem is one entry of a store's raw scrape payload, as produced by the
// external scrapers. Optional fields are empty strings when absent.
type RawItem struct {
	Name       string `json:"name"`
	Brand      string `json:"brand,omitempty"`
	SubText    string `json:"sub_text,omitempty"`
	Size       string `json:"size,omitempty"`
	PerText    string `json:"per_text,omitempty"`
	Price      string `json:"price"`
	PriceTag   string `json:"price_tag,omitempty"`
	Location   string `json:"location,omitempty"`
	Department string `json:"department,omitempty"`
	ValidFrom  string `json:"validfrom,omitempty"`
	ValidTo    string `json:"validto,omitempty"`
	Version    string `json:"version,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
}

// Category groups a store's products under the department name the source
// store assigned. Category order is insertion order from the raw feed.
type Category struct {
	Name     string    `json:"name"`
	Products []Product `json:"products"`
}

// StorePayload is one store's full normalized dataset for the current flyer.
type StorePayload struct {
	Store      string     `json:"store"`
	Date       string     `json:"date"`
	Categories []Category `json:"categories"`
}

// ProductCount returns the total number of products across all categories.
func (p StorePayload) ProductCount() int {
	n := 0
	for _, c := range p.Categories {
		n += len(c.Products)
	}
	return n
}

// Products flattens the payload into a single product list, preserving
// category order.
func (p StorePayload) Products() []Product {
	out := make([]Product, 0, p.ProductCount())
	for _, c := range p.Categories {
		out = append(out, c.Products...)
	}
	return out
}

// Hit is a single nearest-neighbor result from one store's index partition.
// Distance is the backend's embedding-space metric (cosine distance), so a
// smaller value is a better match.
type Hit struct {
	Product  Product
	Distance float64
}

// ScoredProduct is a cross-store search result annotated with similarity,
// where similarity = 1 - distance.
type ScoredProduct struct {
	Product
	Similarity float64 `json:"similarity"`
}
