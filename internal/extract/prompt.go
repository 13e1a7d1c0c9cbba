package extract

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/allofdaniel/shopping-helper/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// maxTranscriptRunes bounds the transcript excerpt placed in a prompt.
const maxTranscriptRunes = 12000

var defaultPositiveCues = []string{"추천", "강추", "꿀템", "좋아요", "만족", "재구매", "필수템"}

var defaultNegativeCues = []string{"비추", "별로", "실망", "후회", "불편", "환불"}

// PromptBuilder renders extraction prompts from the embedded template.
type PromptBuilder struct {
	tmpl *template.Template
}

// promptData is the template input.
type promptData struct {
	DisplayName  string
	Transcript   string
	PositiveCues []string
	NegativeCues []string
	Categories   []string
	PriceMin     int
	PriceMax     int
}

// NewPromptBuilder parses the embedded prompt template.
func NewPromptBuilder() (*PromptBuilder, error) {
	tmpl, err := template.New("extract_prompt.tmpl").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(templateFS, "templates/extract_prompt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

// Build renders the prompt for one transcript.
func (b *PromptBuilder) Build(transcript string, domain model.DomainContext) (string, error) {
	data := promptData{
		DisplayName:  domain.DisplayName,
		Transcript:   truncateRunes(transcript, maxTranscriptRunes),
		PositiveCues: domain.PositiveCues,
		NegativeCues: domain.NegativeCues,
		Categories:   domain.Categories,
		PriceMin:     domain.PriceMin,
		PriceMax:     domain.PriceMax,
	}
	if data.DisplayName == "" {
		data.DisplayName = domain.Name
	}
	if len(data.PositiveCues) == 0 {
		data.PositiveCues = defaultPositiveCues
	}
	if len(data.NegativeCues) == 0 {
		data.NegativeCues = defaultNegativeCues
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
