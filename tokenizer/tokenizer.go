// Package tokenizer provides token counting functionality for LLM context
// management.
//
// Token counting is essential for managing context windows and ensuring
// prompts fit within model limits. This package provides a TokenCounter
// interface for pluggable implementations, plus a heuristic estimator
// suitable for truncation/compression decisions where approximate counts
// are sufficient. For exact counts (billing, provider-enforced limits),
// callers inject their own TokenCounter backed by a real tokenizer — see
// spec §6's "default coarse estimator, provider-accurate implementations
// are plugged in by the caller" contract.
package tokenizer

import "strings"

// TokenCounter provides token counting functionality.
// Implementations may use heuristics or actual tokenization.
type TokenCounter interface {
	// CountTokens returns the estimated or actual token count for the given text.
	CountTokens(text string) int

	// CountMultiple returns the total token count for multiple text segments.
	CountMultiple(texts []string) int
}

// DefaultWordRatio is the tokens-per-word multiplier DefaultTokenCounter
// uses: a conservative middle ground across GPT/Claude-style (~1.3) and
// SentencePiece-style (~1.4) tokenizers, derived from empirical testing on
// English text. Non-English text and code may have different ratios —
// callers with provider-accurate needs should inject their own
// TokenCounter rather than tune this value.
const DefaultWordRatio = 1.35

// HeuristicTokenCounter estimates token counts from a fixed tokens-per-word
// ratio. This is fast and suitable for context management decisions where
// exact counts are not required. For accurate counts, use a tokenizer
// library like tiktoken-go.
type HeuristicTokenCounter struct {
	ratio float64
}

// NewHeuristicTokenCounter creates a token counter using ratio as its
// tokens-per-word multiplier. A non-positive ratio falls back to
// DefaultWordRatio.
func NewHeuristicTokenCounter(ratio float64) *HeuristicTokenCounter {
	if ratio <= 0 {
		ratio = DefaultWordRatio
	}
	return &HeuristicTokenCounter{ratio: ratio}
}

// CountTokens estimates token count for the given text.
// Returns 0 for empty text.
func (h *HeuristicTokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	words := strings.Fields(text)
	return int(float64(len(words)) * h.ratio)
}

// CountMultiple returns the total token count for multiple text segments.
func (h *HeuristicTokenCounter) CountMultiple(texts []string) int {
	total := 0
	for _, text := range texts {
		total += h.CountTokens(text)
	}
	return total
}

// DefaultTokenCounter is a package-level counter using DefaultWordRatio.
// Use this when the caller hasn't injected a provider-specific counter.
var DefaultTokenCounter = NewHeuristicTokenCounter(DefaultWordRatio)

// CountTokens is a convenience function using the default token counter.
func CountTokens(text string) int {
	return DefaultTokenCounter.CountTokens(text)
}
