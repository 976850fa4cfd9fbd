// Package ctxprune trims oversized tool-result payloads to reclaim context
// space while the rest of the transcript is left untouched.
package ctxprune

import (
	"fmt"

	"github.com/contextkeep/contextkeep/tokenizer"
	"github.com/contextkeep/contextkeep/types"
)

// PruneMinimumTokens is the small constant threshold below which the
// orchestrator skips prune entirely, even in warning state — pruning a
// transcript that's nowhere near budget wastes the trimming work.
const PruneMinimumTokens = 2_000

// DefaultMaxOutputChars is used when Config.MaxOutputChars is unset.
const DefaultMaxOutputChars = 2_000

// marker separates the retained head and tail of a trimmed tool result.
const markerFormat = "\n… [%d chars omitted] …\n"

// Config configures a single prune pass.
type Config struct {
	// MaxOutputChars is the approximate size a trimmed tool_result payload
	// is reduced to (head + marker + tail). Zero means DefaultMaxOutputChars.
	MaxOutputChars int

	// ProtectedTools lists tool names whose tool_result payloads are never
	// trimmed, regardless of size.
	ProtectedTools []string
}

// Result is the outcome of a prune pass.
type Result struct {
	Messages            []types.Message
	TrimmedCount        int
	TokensSavedEstimate int
}

// Prune replaces oversized tool_result payloads belonging to non-protected
// tools with a head/marker/tail form, retaining approximately
// cfg.MaxOutputChars characters. Messages are deep-copied; the input slice
// is never mutated.
func Prune(messages []types.Message, cfg Config, counter tokenizer.TokenCounter) Result {
	maxChars := cfg.MaxOutputChars
	if maxChars <= 0 {
		maxChars = DefaultMaxOutputChars
	}
	protected := make(map[string]struct{}, len(cfg.ProtectedTools))
	for _, name := range cfg.ProtectedTools {
		protected[name] = struct{}{}
	}

	toolNameByID := toolNamesByID(messages)

	out := types.CloneMessages(messages)
	result := Result{Messages: out}

	for i := range out {
		for j := range out[i].Parts {
			part := &out[i].Parts[j]
			if part.Type != types.ContentTypeToolResult || part.ToolResult == nil {
				continue
			}
			name := toolNameByID[part.ToolResult.ToolUseID]
			if _, isProtected := protected[name]; isProtected {
				continue
			}

			original := part.ToolResult.Content
			if len([]rune(original)) <= maxChars {
				continue
			}

			trimmed := trimWithMarker(original, maxChars)
			if counter != nil {
				result.TokensSavedEstimate += counter.CountTokens(original) - counter.CountTokens(trimmed)
			}
			part.ToolResult.Content = trimmed
			result.TrimmedCount++
		}
	}

	return result
}

func toolNamesByID(messages []types.Message) map[string]string {
	names := make(map[string]string)
	for _, m := range messages {
		for _, part := range m.Parts {
			if part.Type == types.ContentTypeToolUse && part.ToolUse != nil {
				names[part.ToolUse.ID] = part.ToolUse.Name
			}
		}
	}
	return names
}

// trimWithMarker keeps roughly half of maxChars from the head and half from
// the tail of text, rune-safe, separated by a marker describing the omitted
// character count.
func trimWithMarker(text string, maxChars int) string {
	runes := []rune(text)
	omitted := len(runes) - maxChars
	marker := fmt.Sprintf(markerFormat, omitted)

	headLen := maxChars / 2
	tailLen := maxChars - headLen
	if headLen+tailLen >= len(runes) {
		return text
	}

	head := string(runes[:headLen])
	tail := string(runes[len(runes)-tailLen:])
	return head + marker + tail
}
