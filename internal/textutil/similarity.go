package textutil

// CharJaccard computes the Jaccard similarity of the rune sets of the compact
// keys of a and b. Returns 0 when either side is empty.
func CharJaccard(a, b string) float64 {
	setA := runeSet(CompactKey(a))
	setB := runeSet(CompactKey(b))
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// TokenJaccard computes the Jaccard similarity of two token lists treated as sets.
func TokenJaccard(a, b []string) float64 {
	setA := stringSet(a)
	setB := stringSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// WordOverlap returns the share of a's distinct tokens that also appear in b.
func WordOverlap(a, b []string) float64 {
	setA := stringSet(a)
	if len(setA) == 0 {
		return 0
	}
	setB := stringSet(b)
	hits := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(setA))
}

// Dedupe returns the distinct non-empty values of in, first occurrence first.
func Dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

func stringSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}
