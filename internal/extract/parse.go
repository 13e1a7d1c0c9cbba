package extract

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/textutil"
)

// ErrNoJSONArray is returned when a response holds no decodable product array.
var ErrNoJSONArray = errors.New("no JSON product array in response")

// rawProduct is one element of the model's answer before normalization.
// Numeric fields are kept raw because models emit both numbers and strings.
type rawProduct struct {
	Category        *string         `json:"category"`
	Quote           *string         `json:"quote"`
	RawQuote        *string         `json:"raw_quote"`
	Recommended     *bool           `json:"recommended"`
	Name            string          `json:"name"`
	Price           json.RawMessage `json:"price"`
	Confidence      json.RawMessage `json:"confidence"`
	ConfidenceScore json.RawMessage `json:"confidence_score"`
	Timestamp       json.RawMessage `json:"timestamp"`
	Keywords        json.RawMessage `json:"keywords"`
}

// parseResponse locates the first well-formed JSON array of objects in raw,
// tolerating markdown fences and surrounding prose.
func parseResponse(raw string) ([]rawProduct, error) {
	text := stripCodeFences(raw)

	offset := 0
	for {
		idx := strings.IndexByte(text[offset:], '[')
		if idx < 0 {
			return nil, ErrNoJSONArray
		}
		start := offset + idx

		var items []rawProduct
		dec := json.NewDecoder(strings.NewReader(text[start:]))
		if err := dec.Decode(&items); err == nil {
			return items, nil
		}
		offset = start + 1
	}
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	return strings.ReplaceAll(s, "```", "")
}

// toCandidate normalizes a raw element. It reports false for elements without a name.
func (r rawProduct) toCandidate(videoID string) (model.CandidateProduct, bool) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return model.CandidateProduct{}, false
	}

	c := model.CandidateProduct{
		VideoID:     videoID,
		Name:        name,
		Recommended: r.Recommended == nil || *r.Recommended,
		Keywords:    parseKeywords(r.Keywords),
	}

	conf, ok := parseNumber(r.Confidence)
	if !ok {
		conf, _ = parseNumber(r.ConfidenceScore)
	}
	c.Confidence = model.ClampConfidence(conf)

	if p, ok := parsePriceField(r.Price); ok {
		c.Price = &p
	}
	if ts, ok := parseTimestampField(r.Timestamp); ok {
		c.TimestampSeconds = &ts
	}
	if r.Category != nil {
		if cat := strings.TrimSpace(*r.Category); cat != "" {
			c.Category = &cat
		}
	}
	quote := r.Quote
	if quote == nil {
		quote = r.RawQuote
	}
	if quote != nil {
		if q := strings.TrimSpace(*quote); q != "" {
			c.RawQuote = &q
		}
	}
	return c, true
}

func parseNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func parsePriceField(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f <= 0 {
			return 0, false
		}
		return int(math.Round(f)), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParsePrice(s)
	}
	return 0, false
}

func parseTimestampField(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f < 0 {
			return 0, false
		}
		return int(f), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseTimestamp(s)
	}
	return 0, false
}

// parseKeywords accepts either a string array or a comma separated string.
func parseKeywords(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		list = strings.Split(s, ",")
	}
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}
	return textutil.Dedupe(list)
}
