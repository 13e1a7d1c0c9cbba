package backfill

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/allofdaniel/shopping-helper/internal/extract"
	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/textutil"
)

// markerPattern matches inline timestamps such as "1:23", "[01:23]" or
// "(1:02:03)". Brackets are optional.
var markerPattern = regexp.MustCompile(`[\[(]?\b(\d{1,2}(?::\d{2}){1,2})\b[\])]?`)

// Marker is an inline timestamp found in a transcript.
type Marker struct {
	Start   int // byte offset of the match
	End     int
	Seconds int
}

// FindMarkers returns the inline timestamps of text in order of appearance.
func FindMarkers(text string) []Marker {
	var markers []Marker
	for _, loc := range markerPattern.FindAllStringSubmatchIndex(text, -1) {
		secs, ok := extract.ParseTimestamp(text[loc[2]:loc[3]])
		if !ok {
			continue
		}
		markers = append(markers, Marker{Start: loc[0], End: loc[1], Seconds: secs})
	}
	return markers
}

// NearestMarker returns the marker closest to the mention at [start, end).
// Only markers within window runes count, and a preceding marker wins over a
// following one.
func NearestMarker(text string, markers []Marker, start, end, window int) (Marker, bool) {
	var (
		before, after         Marker
		beforeDist, afterDist = -1, -1
	)
	for _, m := range markers {
		switch {
		case m.Start <= start:
			gap := 0
			if m.End < start {
				gap = utf8.RuneCountInString(text[m.End:start])
			}
			if gap <= window && (beforeDist < 0 || gap < beforeDist) {
				before, beforeDist = m, gap
			}
		case m.Start >= end:
			gap := utf8.RuneCountInString(text[end:m.Start])
			if gap <= window && (afterDist < 0 || gap < afterDist) {
				after, afterDist = m, gap
			}
		}
	}
	if beforeDist >= 0 {
		return before, true
	}
	if afterDist >= 0 {
		return after, true
	}
	return Marker{}, false
}

// searchTerms lists what to look for in a transcript for p, most specific
// first: the full name, its keywords, then name words of two or more runes.
func searchTerms(p model.StoredProduct) []string {
	terms := []string{textutil.Normalize(p.Name)}
	for _, kw := range p.Keywords {
		terms = append(terms, textutil.Normalize(kw))
	}
	for _, w := range strings.Fields(textutil.Normalize(p.Name)) {
		if utf8.RuneCountInString(w) >= 2 {
			terms = append(terms, w)
		}
	}
	return textutil.Dedupe(terms)
}

// locate returns the byte span of the first term found in text.
func locate(text string, terms []string) (int, int, bool) {
	for _, t := range terms {
		if utf8.RuneCountInString(t) < 2 {
			continue
		}
		if i := strings.Index(text, t); i >= 0 {
			return i, i + len(t), true
		}
	}
	return 0, 0, false
}

// transcriptAnchors resolves products whose mention sits near an inline
// marker of the video's transcript.
func transcriptAnchors(video model.VideoRecord, pending []model.StoredProduct, window int) []model.TimestampAnchor {
	if !video.HasTranscript() {
		return nil
	}
	text := textutil.Normalize(*video.Transcript)
	markers := FindMarkers(text)
	if len(markers) == 0 {
		return nil
	}
	var anchors []model.TimestampAnchor
	for _, p := range pending {
		start, end, ok := locate(text, searchTerms(p))
		if !ok {
			continue
		}
		m, ok := NearestMarker(text, markers, start, end, window)
		if !ok || !withinDuration(m.Seconds, video.DurationSeconds) {
			continue
		}
		anchors = append(anchors, observed(p, m.Seconds, model.MethodExistingTranscript))
	}
	return anchors
}

// withinDuration reports whether secs is a valid offset into a video of the
// given length. Unknown durations accept any non-negative offset.
func withinDuration(secs, duration int) bool {
	if secs < 0 {
		return false
	}
	return duration <= 0 || secs < duration
}

func observed(p model.StoredProduct, secs int, method model.TimestampMethod) model.TimestampAnchor {
	known := secs
	return model.TimestampAnchor{
		ProductID:        p.ID,
		VideoID:          p.VideoID,
		KnownSeconds:     &known,
		EstimatedSeconds: secs,
		Method:           method,
	}
}
