package backfill

import (
	"math"
	"slices"

	"github.com/allofdaniel/shopping-helper/internal/model"
)

// Interpolation window as a share of the video duration. Mentions are
// assumed to fall between the intro and the outro.
const (
	windowStart = 0.05
	windowEnd   = 0.95
)

// Interpolate estimates a time for every pending product of one video from
// its position among all of the video's products.
//
// Products with a known time act as anchors; so do two virtual anchors at
// 5% and 95% of the duration placed before the first and after the last
// product. Each pending product is placed linearly between its nearest
// anchors by position. Without any known time the products are spread evenly
// over the window. Results are clamped to [0, duration).
//
// known maps product ids to times resolved earlier in the same run, which
// may not have reached the store yet. The output depends only on the inputs.
func Interpolate(duration int, all, pending []model.StoredProduct, known map[int64]int) []model.TimestampAnchor {
	if duration <= 0 || len(pending) == 0 {
		return nil
	}

	ordered := slices.Clone(all)
	slices.SortStableFunc(ordered, func(a, b model.StoredProduct) int {
		if a.Ordinal != b.Ordinal {
			return a.Ordinal - b.Ordinal
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	want := make(map[int64]model.StoredProduct, len(pending))
	for _, p := range pending {
		want[p.ID] = p
	}

	type anchor struct {
		pos  int
		secs float64
	}
	var anchors []anchor
	for i, p := range ordered {
		if _, isPending := want[p.ID]; isPending {
			continue
		}
		if s, ok := known[p.ID]; ok {
			anchors = append(anchors, anchor{i, float64(s)})
		} else if p.TimestampSeconds != nil {
			anchors = append(anchors, anchor{i, float64(*p.TimestampSeconds)})
		}
	}

	lo := windowStart * float64(duration)
	hi := windowEnd * float64(duration)
	if len(anchors) > 0 {
		lo = math.Min(lo, anchors[0].secs)
		hi = math.Max(hi, anchors[len(anchors)-1].secs)
	}
	anchors = append([]anchor{{-1, lo}}, anchors...)
	anchors = append(anchors, anchor{len(ordered), hi})

	var out []model.TimestampAnchor
	next := 1
	for i, p := range ordered {
		for next < len(anchors)-1 && anchors[next].pos <= i {
			next++
		}
		target, ok := want[p.ID]
		if !ok {
			continue
		}
		prev, after := anchors[next-1], anchors[next]
		frac := float64(i-prev.pos) / float64(after.pos-prev.pos)
		secs := int(math.Round(prev.secs + (after.secs-prev.secs)*frac))
		out = append(out, model.TimestampAnchor{
			ProductID:        target.ID,
			VideoID:          target.VideoID,
			EstimatedSeconds: clamp(secs, duration),
			Method:           model.MethodPositionInterpolated,
		})
	}
	return out
}

func clamp(secs, duration int) int {
	if secs < 0 {
		return 0
	}
	if secs >= duration {
		return duration - 1
	}
	return secs
}
