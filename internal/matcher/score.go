package matcher

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/textutil"
)

// Subscore caps and bonuses.
const (
	maxNameScore       = 50.0
	tokenJaccardWeight = 30.0
	substringBonus     = 20.0
	maxPartialBonus    = 15.0
	keywordHitBonus    = 2.5

	priceExactScore = 20.0
	priceNearScore  = 15.0
	priceFarScore   = 5.0

	categoryDirectScore = 15.0
	categoryMappedScore = 10.0

	bestSellerBonus    = 5.0
	maxPopularityScore = 15.0
)

// popularityTiers map catalog popularity counts to points, highest first.
var popularityTiers = []struct {
	min    int
	points float64
}{
	{10000, 12},
	{1000, 9},
	{100, 6},
	{10, 3},
}

// Query is a product mention to reconcile against the catalog.
type Query struct {
	Price    *int
	Category *string
	Name     string
	Keywords []string
}

// QueryFromCandidate builds a query from an extracted candidate.
func QueryFromCandidate(c model.CandidateProduct) Query {
	return Query{Name: c.Name, Price: c.Price, Category: c.Category, Keywords: c.Keywords}
}

// preparedQuery caches the lexicon output for a query.
type preparedQuery struct {
	Query
	terms    []string
	keywords []string
	compact  string
}

// preparedEntry caches the lexicon output for a catalog entry.
type preparedEntry struct {
	entry   model.CatalogEntry
	terms   []string
	compact string
}

// nameScore awards token overlap plus either a whole-name substring bonus or
// a partial bonus for individual terms found in the entry name.
func nameScore(q preparedQuery, e preparedEntry) float64 {
	if len(q.terms) == 0 || len(e.terms) == 0 {
		return 0
	}
	score := textutil.TokenJaccard(q.terms, e.terms) * tokenJaccardWeight

	if substringMatch(q.compact, e.compact) {
		score += substringBonus
	} else {
		score += partialBonus(q, e)
	}
	return math.Min(score, maxNameScore)
}

func substringMatch(a, b string) bool {
	if utf8.RuneCountInString(a) < 2 || utf8.RuneCountInString(b) < 2 {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func partialBonus(q preparedQuery, e preparedEntry) float64 {
	hits := 0
	for _, t := range q.terms {
		if utf8.RuneCountInString(t) >= 2 && strings.Contains(e.compact, t) {
			hits++
		}
	}
	bonus := maxPartialBonus * float64(hits) / float64(len(q.terms))
	for _, k := range q.keywords {
		if utf8.RuneCountInString(k) >= 2 && strings.Contains(e.compact, k) {
			bonus += keywordHitBonus
		}
	}
	return math.Min(bonus, maxPartialBonus)
}

// priceScore compares against the catalog price with tolerance T = tolerance × price.
func priceScore(price *int, catalogPrice int, tolerance float64) float64 {
	if price == nil || *price <= 0 || catalogPrice <= 0 {
		return 0
	}
	diff := math.Abs(float64(*price - catalogPrice))
	t := tolerance * float64(catalogPrice)
	switch {
	case diff == 0:
		return priceExactScore
	case diff <= t:
		return priceNearScore
	case diff <= 2*t:
		return priceFarScore
	default:
		return 0
	}
}

func categoryScore(lex *Lexicon, category *string, catalogCategory string) float64 {
	if category == nil {
		return 0
	}
	switch lex.CategoryRelation(*category, catalogCategory) {
	case CategoryDirect:
		return categoryDirectScore
	case CategoryMapped:
		return categoryMappedScore
	default:
		return 0
	}
}

func popularityScore(e model.CatalogEntry) float64 {
	score := 0.0
	for _, tier := range popularityTiers {
		if e.PopularityScore >= tier.min {
			score = tier.points
			break
		}
	}
	if e.IsBest {
		score += bestSellerBonus
	}
	return math.Min(score, maxPopularityScore)
}

// confidence blends the name, price and popularity ratios and clamps the result.
func confidence(s model.Subscores) float64 {
	c := s.Name/maxNameScore*0.6 +
		s.Price/priceExactScore*0.25 +
		s.Popularity/maxPopularityScore*0.15
	return model.ClampConfidence(c)
}
