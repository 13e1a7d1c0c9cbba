// Package matcher reconciles extracted product mentions with a retailer
// catalog using weighted name, price, category and popularity scores.
package matcher

import (
	"context"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/allofdaniel/shopping-helper/internal/model"
)

// Matcher scores queries against an immutable catalog snapshot.
// It is safe for concurrent use.
type Matcher struct {
	lex       *Lexicon
	entries   []preparedEntry
	tolerance float64
}

// New prepares a matcher over a copy of catalog for the domain.
func New(catalog []model.CatalogEntry, domain model.DomainContext) *Matcher {
	lex := NewLexicon(domain)
	tolerance := domain.PriceTolerance
	if tolerance <= 0 {
		tolerance = 0.1
	}
	m := &Matcher{
		lex:       lex,
		entries:   make([]preparedEntry, 0, len(catalog)),
		tolerance: tolerance,
	}
	for _, e := range catalog {
		terms := lex.Terms(e.Name)
		m.entries = append(m.entries, preparedEntry{
			entry:   e,
			terms:   terms,
			compact: strings.Join(terms, ""),
		})
	}
	return m
}

// Size returns the number of catalog entries in the snapshot.
func (m *Matcher) Size() int {
	return len(m.entries)
}

// Match returns the best accepted catalog entry for q. The boolean is false
// when no entry reaches both the total score and the name score floor, no
// matter how well price, category or popularity agree.
func (m *Matcher) Match(q Query) (model.MatchResult, bool) {
	pq := m.prepare(q)

	var best model.MatchResult
	found := false
	for i := range m.entries {
		res := m.score(pq, m.entries[i])
		if !res.Accepted() {
			continue
		}
		if !found || better(res, best) {
			best = res
			found = true
		}
	}
	return best, found
}

// Rank returns the n highest-scoring entries for q, accepted or not, best first.
func (m *Matcher) Rank(q Query, n int) []model.MatchResult {
	pq := m.prepare(q)
	results := make([]model.MatchResult, 0, len(m.entries))
	for i := range m.entries {
		res := m.score(pq, m.entries[i])
		if res.TotalScore > 0 {
			results = append(results, res)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return better(results[i], results[j])
	})
	if n > 0 && len(results) > n {
		results = results[:n]
	}
	return results
}

// Outcome is the MatchAll result for one query.
type Outcome struct {
	Result *model.MatchResult // nil when nothing was accepted
	Query  Query
}

// MatchAll matches queries in parallel with at most workers goroutines
// (GOMAXPROCS when workers <= 0). Outcomes are index-aligned with queries.
func (m *Matcher) MatchAll(ctx context.Context, queries []Query, workers int) ([]Outcome, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]Outcome, len(queries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, q := range queries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i].Query = q
			if res, ok := m.Match(q); ok {
				out[i].Result = &res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func (m *Matcher) prepare(q Query) preparedQuery {
	terms := m.lex.Terms(q.Name)
	var keywords []string
	for _, k := range q.Keywords {
		keywords = append(keywords, m.lex.Terms(k)...)
	}
	return preparedQuery{
		Query:    q,
		terms:    terms,
		keywords: keywords,
		compact:  strings.Join(terms, ""),
	}
}

func (m *Matcher) score(q preparedQuery, e preparedEntry) model.MatchResult {
	subs := model.Subscores{
		Name:       nameScore(q, e),
		Price:      priceScore(q.Price, e.entry.Price, m.tolerance),
		Category:   categoryScore(m.lex, q.Category, e.entry.Category),
		Popularity: popularityScore(e.entry),
	}
	conf := confidence(subs)
	return model.MatchResult{
		Entry:             e.entry,
		Subscores:         subs,
		TotalScore:        subs.Total(),
		Confidence:        conf,
		NeedsManualReview: conf < model.ReviewConfidence,
	}
}

// better orders results by total score, then name score; earlier entries win ties.
func better(a, b model.MatchResult) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	return a.Subscores.Name > b.Subscores.Name
}
