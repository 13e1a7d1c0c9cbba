// Package model defines the core domain models used throughout the application.
package model

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	// MinCandidateConfidence is the lowest extraction confidence a candidate may carry.
	MinCandidateConfidence = 0.5

	// priceRoundingUnit is the granularity used for the persistence dedup key.
	priceRoundingUnit = 100
)

// CandidateProduct is an unverified product mention extracted from text.
type CandidateProduct struct {
	Price            *int    // KRW, nil when the mention carried no price
	Category         *string // nil when unknown
	RawQuote         *string
	TimestampSeconds *int
	VideoID          string
	Name             string
	Keywords         []string
	Confidence       float64
	Recommended      bool
}

// ClampConfidence forces a confidence value into [0, 1].
func ClampConfidence(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Surfaces reports whether the candidate should be passed on to matching.
func (c *CandidateProduct) Surfaces() bool {
	return c.Recommended && c.Confidence >= MinCandidateConfidence
}

// DedupKey returns the persistence key (video, normalized name, rounded price).
func (c *CandidateProduct) DedupKey() ProductKey {
	return ProductKey{
		VideoID:        c.VideoID,
		NormalizedName: NormalizeProductName(c.Name),
		RoundedPrice:   RoundPrice(c.Price),
	}
}

// ProductKey identifies a stored product for idempotent upserts.
type ProductKey struct {
	VideoID        string
	NormalizedName string
	RoundedPrice   int
}

// RoundPrice rounds a price to the dedup granularity; absent prices map to -1.
func RoundPrice(price *int) int {
	if price == nil {
		return -1
	}
	return int(math.Round(float64(*price)/priceRoundingUnit)) * priceRoundingUnit
}

// NormalizeProductName composes Hangul to NFC, lower-cases a name and
// collapses internal whitespace.
func NormalizeProductName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(name))), " ")
}

// StoredProduct is a persisted candidate as seen by maintenance jobs.
type StoredProduct struct {
	CreatedAt       time.Time
	Match           *MatchSummary
	TimestampMethod *TimestampMethod
	CandidateProduct
	ID      int64
	Ordinal int // position of the mention within its video, 0-based
}

// HasTimestamp reports whether a mention time is already known.
func (p *StoredProduct) HasTimestamp() bool {
	return p.TimestampSeconds != nil
}

// MatchSummary is the persisted projection of a MatchResult.
type MatchSummary struct {
	CatalogID         string
	TotalScore        float64
	Confidence        float64
	NeedsManualReview bool
}
