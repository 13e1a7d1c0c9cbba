package backfill

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/allofdaniel/shopping-helper/internal/extract"
	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/textutil"
)

// prefixRunes is the prefix length compared when no word overlaps.
const prefixRunes = 3

// prefixScore is the score of a prefix-only hit.
const prefixScore = 0.5

// descriptionLine matches "MM:SS text" and "H:MM:SS text" lines, allowing a
// list bullet before the time and a separator after it.
var descriptionLine = regexp.MustCompile(`^\s*(?:[-*•·]\s*|\d+\.\s+)?[\[(]?(\d{1,2}(?::\d{2}){1,2})[\])]?\s*[-–—:|.]?\s*(.+?)\s*$`)

// ChapterScore rates how well a product name fits a chapter title: 1 when
// one contains the other, else the share of name words found in the title,
// else 0.5 when a name word's three-rune prefix appears in the title.
func ChapterScore(name, title string) float64 {
	compactName := textutil.CompactKey(name)
	compactTitle := textutil.CompactKey(title)
	if compactName == "" || compactTitle == "" {
		return 0
	}
	if textutil.ContainsEither(compactName, compactTitle) {
		return 1
	}
	if overlap := textutil.WordOverlap(textutil.Tokenize(name), textutil.Tokenize(title)); overlap > 0 {
		return overlap
	}
	for _, w := range textutil.Tokenize(name) {
		r := []rune(w)
		if len(r) >= prefixRunes && strings.Contains(compactTitle, string(r[:prefixRunes])) {
			return prefixScore
		}
	}
	return 0
}

// BestChapter returns the chapter scoring highest for name, at least
// minScore. Ties keep the earlier chapter.
func BestChapter(name string, chapters []model.Chapter, minScore float64) (model.Chapter, float64, bool) {
	var (
		best      model.Chapter
		bestScore float64
		found     bool
	)
	for _, ch := range chapters {
		score := ChapterScore(name, ch.Title)
		if score < minScore {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, found = ch, score, true
		}
	}
	return best, bestScore, found
}

// ParseDescriptionChapters extracts timestamped lines from a video
// description. Lines without a leading time are ignored.
func ParseDescriptionChapters(description string) []model.Chapter {
	var chapters []model.Chapter
	sc := bufio.NewScanner(strings.NewReader(description))
	for sc.Scan() {
		m := descriptionLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		secs, ok := extract.ParseTimestamp(m[1])
		if !ok {
			continue
		}
		chapters = append(chapters, model.Chapter{Title: m[2], StartSeconds: secs})
	}
	return chapters
}

// chapterAnchors matches every pending product against the chapters.
func chapterAnchors(video model.VideoRecord, pending []model.StoredProduct, chapters []model.Chapter, method model.TimestampMethod, minScore float64) []model.TimestampAnchor {
	if len(chapters) == 0 {
		return nil
	}
	var anchors []model.TimestampAnchor
	for _, p := range pending {
		ch, _, ok := BestChapter(p.Name, chapters, minScore)
		if !ok || !withinDuration(ch.StartSeconds, video.DurationSeconds) {
			continue
		}
		anchors = append(anchors, observed(p, ch.StartSeconds, method))
	}
	return anchors
}
