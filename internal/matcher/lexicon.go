package matcher

import (
	"slices"
	"sort"
	"unicode/utf8"

	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/textutil"
)

// minCompoundPart is the shortest remainder, in runes, split off a compound token.
const minCompoundPart = 2

// Lexicon strips domain stopwords and folds lexical variants onto one
// canonical term, so "스텐", "스테인레스" and "stainless" compare equal.
type Lexicon struct {
	stopwords   map[string]struct{}
	canonical   map[string]string
	categoryMap map[string][]string
	// variants sorted longest first for prefix splitting
	variants []string
}

// NewLexicon builds a lexicon from a domain profile. The first term of each
// variant group is its canonical form.
func NewLexicon(domain model.DomainContext) *Lexicon {
	l := &Lexicon{
		stopwords:   make(map[string]struct{}, len(domain.Stopwords)),
		canonical:   make(map[string]string),
		categoryMap: make(map[string][]string, len(domain.CategoryMap)),
	}
	for _, w := range domain.Stopwords {
		l.stopwords[textutil.CompactKey(w)] = struct{}{}
	}
	for _, group := range domain.Variants {
		if len(group) == 0 {
			continue
		}
		canon := textutil.CompactKey(group[0])
		for _, v := range group {
			key := textutil.CompactKey(v)
			if key == "" {
				continue
			}
			if _, seen := l.canonical[key]; !seen {
				l.variants = append(l.variants, key)
			}
			l.canonical[key] = canon
		}
	}
	sort.SliceStable(l.variants, func(i, j int) bool {
		return utf8.RuneCountInString(l.variants[i]) > utf8.RuneCountInString(l.variants[j])
	})
	for cat, mapped := range domain.CategoryMap {
		key := textutil.CompactKey(cat)
		for _, m := range mapped {
			l.categoryMap[key] = append(l.categoryMap[key], textutil.CompactKey(m))
		}
	}
	return l
}

// Terms tokenizes s, drops stopwords and canonicalizes variants. A token that
// starts with a known variant ("스텐배수구망") is split into the variant and
// the remainder.
func (l *Lexicon) Terms(s string) []string {
	var out []string
	for _, tok := range textutil.Tokenize(s) {
		out = append(out, l.expand(tok)...)
	}
	return textutil.Dedupe(out)
}

func (l *Lexicon) expand(tok string) []string {
	if _, stop := l.stopwords[tok]; stop {
		return nil
	}
	if canon, ok := l.canonical[tok]; ok {
		return []string{canon}
	}
	for _, v := range l.variants {
		if len(tok) <= len(v) || tok[:len(v)] != v {
			continue
		}
		rest := tok[len(v):]
		if utf8.RuneCountInString(rest) < minCompoundPart {
			continue
		}
		return append([]string{l.canonical[v]}, l.expandRest(rest)...)
	}
	return []string{tok}
}

// expandRest canonicalizes a compound remainder without splitting it further.
func (l *Lexicon) expandRest(tok string) []string {
	if _, stop := l.stopwords[tok]; stop {
		return nil
	}
	if canon, ok := l.canonical[tok]; ok {
		return []string{canon}
	}
	return []string{tok}
}

// CategoryRelation reports whether two categories match directly, through the
// domain category map, or not at all.
func (l *Lexicon) CategoryRelation(a, b string) CategoryRelation {
	ka, kb := textutil.CompactKey(a), textutil.CompactKey(b)
	if ka == "" || kb == "" {
		return CategoryUnrelated
	}
	if ka == kb {
		return CategoryDirect
	}
	if slices.Contains(l.categoryMap[ka], kb) || slices.Contains(l.categoryMap[kb], ka) {
		return CategoryMapped
	}
	for _, mapped := range l.categoryMap {
		if slices.Contains(mapped, ka) && slices.Contains(mapped, kb) {
			return CategoryMapped
		}
	}
	if textutil.ContainsEither(ka, kb) {
		return CategoryMapped
	}
	return CategoryUnrelated
}

// CategoryRelation classifies how two category labels relate.
type CategoryRelation int

// Category relations.
const (
	CategoryUnrelated CategoryRelation = iota
	CategoryMapped
	CategoryDirect
)
