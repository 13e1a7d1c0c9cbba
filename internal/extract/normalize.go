package extract

import (
	"math"
	"strconv"
	"strings"
)

var priceUnits = map[rune]float64{
	'만': 10000,
	'천': 1000,
	'백': 100,
}

var priceNoise = strings.NewReplacer(
	",", "",
	"원", "",
	"₩", "",
	"krw", "",
	"약", "",
	"정도", "",
	"쯤", "",
	" ", "",
)

// ParsePrice converts a Korean price notation into won.
// It accepts digit groups ("2,000원"), unit suffixes ("2천원", "2만원",
// "2.5만원") and mixed forms ("1만 5천원", "1만5000원"). Parsing stops at the
// first unrecognized rune, so ranges like "2000~3000원" yield the lower bound.
func ParsePrice(s string) (int, bool) {
	s = priceNoise.Replace(strings.ToLower(strings.TrimSpace(s)))
	if s == "" {
		return 0, false
	}

	var total float64
	var num strings.Builder
	parsed := false

	flush := func(unit float64) bool {
		v := 1.0
		if num.Len() > 0 {
			f, err := strconv.ParseFloat(num.String(), 64)
			if err != nil {
				return false
			}
			v = f
		}
		total += v * unit
		num.Reset()
		parsed = true
		return true
	}

scan:
	for _, r := range s {
		switch {
		case isDigit(r) || r == '.':
			num.WriteRune(r)
		case priceUnits[r] > 0:
			if !flush(priceUnits[r]) {
				return 0, false
			}
		default:
			break scan
		}
	}
	if num.Len() > 0 {
		if !flush(1) {
			return 0, false
		}
	}
	if !parsed || total <= 0 {
		return 0, false
	}
	return int(math.Round(total)), true
}

var timestampUnits = map[rune]int{
	'시': 3600,
	'분': 60,
	'초': 1,
}

// ParseTimestamp converts "1:23", "H:MM:SS", "1분 23초" or plain seconds into seconds.
func ParseTimestamp(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, false
		}
		total := 0
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 0 {
				return 0, false
			}
			if i > 0 && n >= 60 {
				return 0, false
			}
			total = total*60 + n
		}
		return total, true
	}

	if n, err := strconv.Atoi(s); err == nil {
		return n, n >= 0
	}

	// 1시간 2분 3초, 1분 23초, 45초
	s = strings.ReplaceAll(strings.ReplaceAll(s, "간", ""), " ", "")
	total := 0
	num := 0
	digits := false
	for _, r := range s {
		switch {
		case isDigit(r):
			num = num*10 + int(r-'0')
			digits = true
		case timestampUnits[r] > 0 && digits:
			total += num * timestampUnits[r]
			num, digits = 0, false
		default:
			return 0, false
		}
	}
	if digits {
		return 0, false
	}
	return total, total > 0
}

// isDigit accepts ASCII digits only; other Unicode digits are not numbers
// to strconv either.
func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
