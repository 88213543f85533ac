// Package token estimates token counts for LLM context budgeting.
//
// Chunk sizing and retrieval budgeting must agree on token math, so both
// consume the same Counter. Counts are heuristic (characters per token,
// calibrated per model family) rather than exact BPE, which keeps the
// package dependency-free and deterministic; budgets elsewhere in the
// system leave headroom for the approximation.
package token

import (
	"strings"
	"unicode/utf8"
)

// ModelConfig holds the estimation parameters for one model family.
type ModelConfig struct {
	Name          string
	CharsPerToken float64
}

// Known model configurations. English prose averages ~4 characters per
// token on OpenAI vocabularies.
var (
	GPT4oMini = ModelConfig{Name: "gpt-4o-mini", CharsPerToken: 4.0}
	GPT4o     = ModelConfig{Name: "gpt-4o", CharsPerToken: 4.0}

	defaultConfig = ModelConfig{Name: "default", CharsPerToken: 4.0}

	configs = map[string]ModelConfig{
		GPT4oMini.Name: GPT4oMini,
		GPT4o.Name:     GPT4o,
	}
)

// Counter counts tokens for a fixed model vocabulary. It is stateless and
// safe for concurrent use.
type Counter struct {
	cfg ModelConfig
}

// NewCounter returns a Counter for the named model. Unknown models fall back
// to the default configuration rather than failing.
func NewCounter(model string) *Counter {
	if cfg, ok := configs[model]; ok {
		return &Counter{cfg: cfg}
	}
	// Substring match covers versioned names like "gpt-4o-mini-2024-07-18".
	lower := strings.ToLower(model)
	for name, cfg := range configs {
		if strings.Contains(lower, name) {
			return &Counter{cfg: cfg}
		}
	}
	return &Counter{cfg: defaultConfig}
}

// Count estimates the number of tokens in text. Empty text counts as zero;
// any non-empty text counts as at least one token.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	chars := utf8.RuneCountInString(text)
	n := int(float64(chars) / c.cfg.CharsPerToken)
	if n == 0 {
		n = 1
	}
	return n
}

// CountAll returns the summed token estimate over texts.
func (c *Counter) CountAll(texts []string) int {
	total := 0
	for _, t := range texts {
		total += c.Count(t)
	}
	return total
}

// Model returns the name of the model configuration in use.
func (c *Counter) Model() string {
	return c.cfg.Name
}
