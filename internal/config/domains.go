package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/model"
)

// DefaultPriceTolerance is the relative price tolerance used when a profile sets none.
const DefaultPriceTolerance = 0.1

// domainsFile is the on-disk layout of a domain profile file.
type domainsFile struct {
	Domains []model.DomainContext `yaml:"domains"`
}

// DefaultDomains returns the built-in domain profiles.
func DefaultDomains() map[string]model.DomainContext {
	return map[string]model.DomainContext{
		"daiso": {
			Name:         "daiso",
			DisplayName:  "다이소",
			Keywords:     []string{"다이소", "daiso", "다이소템", "꿀템", "추천템", "천원샵"},
			PositiveCues: []string{"추천", "강추", "꿀템", "좋아요", "만족", "재구매", "필수템", "인생템"},
			NegativeCues: []string{"비추", "별로", "실망", "후회", "불편", "환불", "사지 마세요"},
			Categories:   []string{"주방", "욕실", "청소", "수납", "문구", "뷰티", "인테리어", "생활"},
			Stopwords: []string{
				"다이소", "다이소에서", "다이소템", "daiso",
				"추천", "강추", "꿀템", "필수템", "인생템", "진짜", "완전", "최고", "대박", "신상", "베스트", "best",
			},
			Variants: [][]string{
				{"스테인리스", "스텐", "스테인레스", "stainless", "스테인리스스틸"},
				{"실리콘", "silicone", "실리콘소재"},
				{"배수구망", "배수구거름망", "배수망"},
				{"수납함", "수납박스", "정리함", "정리박스"},
				{"밀폐용기", "밀폐통", "보관용기"},
			},
			CategoryMap: map[string][]string{
				"주방": {"주방용품", "키친", "조리도구"},
				"욕실": {"욕실용품", "화장실", "바스"},
				"청소": {"청소용품", "세제"},
				"수납": {"수납정리", "정리용품"},
			},
			PriceMin:       1000,
			PriceMax:       5000,
			PriceTolerance: DefaultPriceTolerance,
		},
		"costco": {
			Name:         "costco",
			DisplayName:  "코스트코",
			Keywords:     []string{"코스트코", "costco", "코스트코템", "코스트코 추천"},
			PositiveCues: []string{"추천", "강추", "가성비", "재구매", "필수템"},
			NegativeCues: []string{"비추", "별로", "실망", "후회"},
			Categories:   []string{"식품", "주방", "생활", "가전"},
			Stopwords:    []string{"코스트코", "코스트코에서", "costco", "추천", "강추", "진짜", "완전", "최고", "가성비"},
			Variants: [][]string{
				{"스테인리스", "스텐", "스테인레스", "stainless"},
			},
			PriceMin:       3000,
			PriceMax:       300000,
			PriceTolerance: DefaultPriceTolerance,
		},
	}
}

// LoadDomains returns the built-in profiles overlaid with any profiles in the
// YAML file at path. A profile in the file replaces the built-in one with the
// same name. An empty path returns the built-ins.
func LoadDomains(path string) (map[string]model.DomainContext, error) {
	domains := DefaultDomains()
	if path == "" {
		return domains, nil
	}

	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read domain profiles: %w", err)
	}

	var file domainsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse domain profiles %s: %w", path, err)
	}

	for i, d := range file.Domains {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: domain profile %d has no name", common.ErrInvalidConfig, i)
		}
		if d.PriceTolerance <= 0 {
			d.PriceTolerance = DefaultPriceTolerance
		}
		if d.PriceMax > 0 && d.PriceMin > d.PriceMax {
			return nil, fmt.Errorf("%w: domain %s has price_min above price_max", common.ErrInvalidConfig, d.Name)
		}
		domains[d.Name] = d
	}
	return domains, nil
}

// Domain looks up a profile by name.
func Domain(domains map[string]model.DomainContext, name string) (model.DomainContext, error) {
	d, ok := domains[name]
	if !ok {
		names := make([]string, 0, len(domains))
		for n := range domains {
			names = append(names, n)
		}
		sort.Strings(names)
		return model.DomainContext{}, fmt.Errorf("%w: unknown domain %q (known: %v)", common.ErrInvalidConfig, name, names)
	}
	return d, nil
}
