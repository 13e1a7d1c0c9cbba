package llm

import (
	"time"
)

// defaultSystemPrompt frames every completion as a structured extraction task.
const defaultSystemPrompt = "You extract product recommendations from video transcripts. " +
	"You MUST respond with ONLY a JSON array. Do not include explanatory text or markdown."

// Config holds configuration for a completion client.
type Config struct {
	Provider     string
	APIKey       string
	Model        string
	BaseURL      string // overrides the provider endpoint, mainly for tests and proxies
	SystemPrompt string
	Timeout      time.Duration
	Temperature  float64
	MaxTokens    int
}

func (c Config) systemPrompt() string {
	if c.SystemPrompt != "" {
		return c.SystemPrompt
	}
	return defaultSystemPrompt
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 60 * time.Second
}
