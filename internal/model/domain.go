package model

// DomainContext describes one retailer domain the pipeline collects for.
type DomainContext struct {
	CategoryMap    map[string][]string `yaml:"category_map"`
	Name           string              `yaml:"name"`
	DisplayName    string              `yaml:"display_name"`
	Keywords       []string            `yaml:"keywords"`
	PositiveCues   []string            `yaml:"positive_cues"`
	NegativeCues   []string            `yaml:"negative_cues"`
	Categories     []string            `yaml:"categories"`
	Stopwords      []string            `yaml:"stopwords"`
	Variants       [][]string          `yaml:"variants"`
	PriceMin       int                 `yaml:"price_min"`
	PriceMax       int                 `yaml:"price_max"`
	PriceTolerance float64             `yaml:"price_tolerance"`
}

// RelevanceTerms returns the words whose presence marks text as on-topic.
func (d DomainContext) RelevanceTerms() []string {
	terms := make([]string, 0, len(d.Keywords)+1)
	if d.DisplayName != "" {
		terms = append(terms, d.DisplayName)
	}
	return append(terms, d.Keywords...)
}
