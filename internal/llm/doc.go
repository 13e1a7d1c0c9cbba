// Package llm provides language model completion clients for product extraction.
// It supports OpenAI and Anthropic, and supplies the token-bucket rate limiter and
// response cache used to keep completion spend bounded.
package llm
