package model

// CatalogEntry is an authoritative retailer product record used as ground truth.
type CatalogEntry struct {
	ID              string // retailer SKU
	Name            string
	Category        string
	ImageURL        string
	ProductURL      string
	Price           int
	PopularityScore int
	IsBest          bool
}
