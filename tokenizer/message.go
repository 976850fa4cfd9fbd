package tokenizer

import "github.com/contextkeep/contextkeep/types"

// MessageText extracts every string the counter should see for a message:
// its flat content, its text parts, and the opaque text of its tool_use
// input and tool_result payloads. Image parts contribute nothing — they
// aren't text for heuristic counting purposes.
func MessageText(m types.Message) []string {
	if !m.IsMultimodal() {
		if m.Content == "" {
			return nil
		}
		return []string{m.Content}
	}

	var texts []string
	for _, part := range m.Parts {
		switch part.Type {
		case types.ContentTypeText:
			texts = append(texts, part.Text)
		case types.ContentTypeToolUse:
			if part.ToolUse != nil && len(part.ToolUse.Input) > 0 {
				texts = append(texts, string(part.ToolUse.Input))
			}
		case types.ContentTypeToolResult:
			if part.ToolResult != nil {
				texts = append(texts, part.ToolResult.Content)
			}
		}
	}
	return texts
}

// CountMessageTokens returns counter's estimate for a single message. When
// the message carries a cached Tokens count it is returned directly instead
// of re-tokenizing.
func CountMessageTokens(counter TokenCounter, m types.Message) int {
	if m.Tokens > 0 {
		return m.Tokens
	}
	return counter.CountMultiple(MessageText(m))
}

// CountMessagesTokens sums CountMessageTokens across a slice of messages.
func CountMessagesTokens(counter TokenCounter, messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += CountMessageTokens(counter, m)
	}
	return total
}
