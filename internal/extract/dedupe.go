package extract

import (
	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/textutil"
)

// DuplicateThreshold is the character-set Jaccard similarity at which two
// names are treated as the same product.
const DuplicateThreshold = 0.7

// IsDuplicateName reports whether two product names refer to the same item:
// after stripping punctuation, case and spacing, one contains the other or
// their character sets overlap by at least DuplicateThreshold.
func IsDuplicateName(a, b string) bool {
	ka, kb := textutil.CompactKey(a), textutil.CompactKey(b)
	if ka == "" || kb == "" {
		return false
	}
	if textutil.ContainsEither(ka, kb) {
		return true
	}
	return textutil.CharJaccard(ka, kb) >= DuplicateThreshold
}

// Dedupe collapses near-identical candidates. The higher-confidence candidate
// of a pair survives, inherits keywords and any field it lacks, and keeps the
// position of the first occurrence.
func Dedupe(candidates []model.CandidateProduct) []model.CandidateProduct {
	out := make([]model.CandidateProduct, 0, len(candidates))
	for _, c := range candidates {
		merged := false
		for i := range out {
			if !IsDuplicateName(out[i].Name, c.Name) {
				continue
			}
			out[i] = mergeCandidates(out[i], c)
			merged = true
			break
		}
		if !merged {
			out = append(out, c)
		}
	}
	return out
}

func mergeCandidates(a, b model.CandidateProduct) model.CandidateProduct {
	keep, drop := a, b
	if b.Confidence > a.Confidence {
		keep, drop = b, a
	}
	keep.Keywords = textutil.Dedupe(append(append([]string{}, keep.Keywords...), drop.Keywords...))
	if keep.Price == nil {
		keep.Price = drop.Price
	}
	if keep.Category == nil {
		keep.Category = drop.Category
	}
	if keep.RawQuote == nil {
		keep.RawQuote = drop.RawQuote
	}
	if keep.TimestampSeconds == nil {
		keep.TimestampSeconds = drop.TimestampSeconds
	}
	return keep
}
