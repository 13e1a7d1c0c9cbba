package model

import "fmt"

// Match acceptance thresholds.
const (
	MinMatchTotalScore = 40.0
	MinMatchNameScore  = 20.0
	ReviewConfidence   = 0.7
)

// Subscores break a match score down by factor.
type Subscores struct {
	Name       float64 // 0-50
	Price      float64 // 0-20
	Category   float64 // 0-15
	Popularity float64 // 0-15
}

// Total sums the factor scores.
func (s Subscores) Total() float64 {
	return s.Name + s.Price + s.Category + s.Popularity
}

// MatchResult links a candidate to its best catalog entry.
type MatchResult struct {
	Entry             CatalogEntry
	Subscores         Subscores
	TotalScore        float64
	Confidence        float64
	NeedsManualReview bool
}

// Accepted reports whether the result clears both the total and the name floor.
func (m *MatchResult) Accepted() bool {
	return m.TotalScore >= MinMatchTotalScore && m.Subscores.Name >= MinMatchNameScore
}

// Summary projects the result for persistence.
func (m *MatchResult) Summary() *MatchSummary {
	return &MatchSummary{
		CatalogID:         m.Entry.ID,
		TotalScore:        m.TotalScore,
		Confidence:        m.Confidence,
		NeedsManualReview: m.NeedsManualReview,
	}
}

func (m *MatchResult) String() string {
	return fmt.Sprintf("%s (%s) score=%.1f confidence=%.2f review=%t",
		m.Entry.Name, m.Entry.ID, m.TotalScore, m.Confidence, m.NeedsManualReview)
}
