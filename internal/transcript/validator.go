// Package transcript gates transcripts before an extraction call is spent on them.
package transcript

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/textutil"
)

const (
	// MinLength is the shortest transcript, in runes, worth extracting from.
	MinLength = 20
	// MaxNoiseRatio is the largest share of noise lines a valid transcript may have.
	MaxNoiseRatio = 0.6

	// lengthSaturation is the rune count at which length stops adding to the quality score.
	lengthSaturation = 500
)

// Rejection reasons.
const (
	ReasonEmpty           = "empty"
	ReasonTooShort        = "too_short"
	ReasonNoDomainKeyword = "no_domain_keyword"
	ReasonMostlyNoise     = "mostly_noise"
)

// Result is the outcome of Validate.
type Result struct {
	RejectionReason string // empty when valid
	QualityScore    float64
	IsValid         bool
}

var (
	// [음악], (박수), [Music]
	soundTagPattern = regexp.MustCompile(`^[\[(][^\])]{0,20}[\])]$`)
	// 00:12 or 1:02:03 on a line of its own
	bareTimestampPattern = regexp.MustCompile(`^\d{1,2}(:\d{2}){1,2}$`)

	boilerplatePhrases = []string{
		"구독과 좋아요",
		"구독 좋아요",
		"구독 부탁",
		"알림 설정",
		"시청해 주셔서 감사합니다",
		"시청해주셔서 감사합니다",
		"subscribe",
		"thanks for watching",
	}
)

// Validate decides whether text is worth an extraction call for domain.
// It has no side effects.
func Validate(text string, domain model.DomainContext) Result {
	trimmed := strings.TrimSpace(norm.NFC.String(text))
	if trimmed == "" {
		return Result{RejectionReason: ReasonEmpty}
	}

	length := utf8.RuneCountInString(trimmed)
	noise := noiseRatio(trimmed)
	hits, tokens := keywordHits(trimmed, domain.RelevanceTerms())
	score := qualityScore(length, hits, tokens, noise)

	switch {
	case length < MinLength:
		return Result{RejectionReason: ReasonTooShort, QualityScore: score}
	case len(domain.RelevanceTerms()) > 0 && hits == 0:
		return Result{RejectionReason: ReasonNoDomainKeyword, QualityScore: score}
	case noise > MaxNoiseRatio:
		return Result{RejectionReason: ReasonMostlyNoise, QualityScore: score}
	}
	return Result{IsValid: true, QualityScore: score}
}

// Sanitize strips HTML markup and entities so text of any provenance can be
// validated and sent to extraction. Line structure is preserved.
func Sanitize(text string) string {
	policy := bluemonday.StrictPolicy()
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = html.UnescapeString(policy.Sanitize(text))
	return norm.NFC.String(strings.TrimSpace(text))
}

func noiseRatio(text string) float64 {
	lines := strings.Split(text, "\n")
	noisy := 0
	for _, line := range lines {
		if isNoiseLine(line) {
			noisy++
		}
	}
	return float64(noisy) / float64(len(lines))
}

func isNoiseLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	if soundTagPattern.MatchString(line) || bareTimestampPattern.MatchString(line) {
		return true
	}
	if !strings.ContainsFunc(line, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
		return true
	}
	lower := strings.ToLower(line)
	for _, phrase := range boilerplatePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func keywordHits(text string, terms []string) (hits, tokens int) {
	normalized := textutil.Normalize(text)
	tokens = len(strings.Fields(normalized))
	for _, term := range terms {
		term = textutil.Normalize(term)
		if term == "" {
			continue
		}
		hits += strings.Count(normalized, term)
	}
	return hits, tokens
}

func qualityScore(length, hits, tokens int, noise float64) float64 {
	lengthScore := float64(length) / lengthSaturation
	if lengthScore > 1 {
		lengthScore = 1
	}

	density := 0.0
	if tokens > 0 {
		// one keyword per ten tokens already counts as fully on-topic
		density = float64(hits) / float64(tokens) * 10
		if density > 1 {
			density = 1
		}
	}

	return model.ClampConfidence(0.3*lengthScore + 0.3*density + 0.4*(1-noise))
}
