package types

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies who produced a Message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Priority ranks a message's importance to the context-management pipeline.
// Higher-priority messages are preferred for retention by prune/truncate.
type Priority int

// Priority levels, ordered SYSTEM > TOOL_PAIR > NORMAL > LOW.
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityToolPair
	PrioritySystem
)

// String renders the priority's name for logging.
func (p Priority) String() string {
	switch p {
	case PrioritySystem:
		return "SYSTEM"
	case PriorityToolPair:
		return "TOOL_PAIR"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// LineageKind discriminates the Lineage tagged union. A message either has
// no lineage, was produced by compression (LineageSummary), or was retained
// through a fallback sliding-window truncation (LineageTruncated).
type LineageKind string

// Lineage kinds.
const (
	LineageNone      LineageKind = ""
	LineageSummary   LineageKind = "summary"
	LineageTruncated LineageKind = "truncated"
)

// Lineage records how a message relates to a prior compression or
// truncation event. It replaces the source's ad-hoc isSummary/condenseId/
// truncationParent boolean-and-string-pair convention with a single
// discriminated value: a message is never simultaneously a summary and a
// truncation survivor.
type Lineage struct {
	Kind LineageKind `json:"kind,omitempty"`

	// CondenseID is set when Kind == LineageSummary: the id of the
	// compression event that produced this message.
	CondenseID string `json:"condense_id,omitempty"`

	// TruncationParent is set when Kind == LineageTruncated: the id of the
	// fallback sliding-window event this message was retained through.
	TruncationParent string `json:"truncation_parent,omitempty"`
}

// IsSummary reports whether this lineage marks a compression-produced message.
func (l Lineage) IsSummary() bool { return l.Kind == LineageSummary }

// IsTruncated reports whether this lineage marks a truncation-survivor message.
func (l Lineage) IsTruncated() bool { return l.Kind == LineageTruncated }

// SummaryLineage builds a Lineage for a message produced by compression.
func SummaryLineage(condenseID string) Lineage {
	return Lineage{Kind: LineageSummary, CondenseID: condenseID}
}

// TruncatedLineage builds a Lineage for a message retained through a
// fallback sliding-window truncation.
func TruncatedLineage(truncationParent string) Lineage {
	return Lineage{Kind: LineageTruncated, TruncationParent: truncationParent}
}

// Message is a single entry in a conversation transcript.
type Message struct {
	// ID is a stable identifier for the message, unique within a transcript.
	ID   string `json:"id"`
	Role Role   `json:"role"`

	// Content is the legacy flat-text body. If Parts is non-empty, Parts
	// takes precedence and Content is kept empty.
	Content string `json:"content,omitempty"`

	// Parts is the ordered multimodal content sequence. Empty when the
	// message is plain text stored in Content.
	Parts []ContentPart `json:"parts,omitempty"`

	// Priority affects retention order during prune/truncate.
	Priority Priority `json:"priority"`

	// Tokens is a cached token count for this message. Zero means "not yet
	// counted" — callers should treat it as absent and re-tokenize.
	Tokens int `json:"tokens,omitempty"`

	// CreatedAt is when the message was produced, used for recency scoring.
	CreatedAt time.Time `json:"created_at,omitempty"`

	// Lineage records compression/truncation provenance, see LineageKind.
	Lineage Lineage `json:"lineage,omitempty"`

	// Metadata is freeform caller-attached data, carried through unchanged.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IsSummary reports whether this message was produced by a compression step.
func (m *Message) IsSummary() bool { return m.Lineage.IsSummary() }

// CondenseID returns the compression event id, or "" if this message isn't a summary.
func (m *Message) CondenseID() string { return m.Lineage.CondenseID }

// TruncationParent returns the truncation event id, or "" if this message
// wasn't retained through a fallback sliding-window truncation.
func (m *Message) TruncationParent() string { return m.Lineage.TruncationParent }

// GetContent returns the message's text content. If Parts is set, it
// concatenates the text parts; otherwise it returns the legacy Content field.
func (m *Message) GetContent() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var sb strings.Builder
	for _, part := range m.Parts {
		if part.Type == ContentTypeText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// IsMultimodal reports whether the message uses the Parts representation.
func (m *Message) IsMultimodal() bool { return len(m.Parts) > 0 }

// SetTextContent sets the message to plain text, clearing any Parts.
func (m *Message) SetTextContent(text string) {
	m.Content = text
	m.Parts = nil
}

// AddPart appends a content part, switching the message to multimodal
// representation (clearing the legacy Content field on the first call).
func (m *Message) AddPart(part ContentPart) {
	if len(m.Parts) == 0 {
		m.Content = ""
	}
	m.Parts = append(m.Parts, part)
}

// ToolUseParts returns every tool_use part in the message, in order.
func (m *Message) ToolUseParts() []ToolUseContent {
	var out []ToolUseContent
	for _, part := range m.Parts {
		if part.Type == ContentTypeToolUse && part.ToolUse != nil {
			out = append(out, *part.ToolUse)
		}
	}
	return out
}

// ToolResultParts returns every tool_result part in the message, in order.
func (m *Message) ToolResultParts() []ToolResultContent {
	var out []ToolResultContent
	for _, part := range m.Parts {
		if part.Type == ContentTypeToolResult && part.ToolResult != nil {
			out = append(out, *part.ToolResult)
		}
	}
	return out
}

// Clone returns a deep copy of the message, safe to mutate independently of
// the original. Stores (checkpoint, snapshot) rely on this instead of a
// shared-pointer copy to honor the "caller owns messages" lifecycle rule.
func (m Message) Clone() Message {
	clone := m
	if m.Parts != nil {
		clone.Parts = make([]ContentPart, len(m.Parts))
		copy(clone.Parts, m.Parts)
	}
	if m.Metadata != nil {
		clone.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}

// CloneMessages deep-copies a slice of messages.
func CloneMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = m.Clone()
	}
	return out
}

// Summary renders a short human-readable description of a multimodal
// message's Parts (e.g. "answer: [1 image]"), for logs and debug dumps that
// never see a blank field for a multimodal message. It is display-only —
// Message round-trips through encoding/json unmodified, so a caller that
// needs a literal on-disk/on-wire copy (ctxsnapshot, ctxcheckpoint) never
// sees this text in place of the real Content/Parts.
func (m *Message) Summary() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	return m.contentSummary()
}

func (m *Message) contentSummary() string {
	var texts []string
	counts := map[ContentType]int{}
	for _, part := range m.Parts {
		if part.Type == ContentTypeText {
			texts = append(texts, part.Text)
			continue
		}
		counts[part.Type]++
	}
	summary := strings.Join(texts, " ")
	for _, ct := range []ContentType{ContentTypeImage, ContentTypeToolUse, ContentTypeToolResult} {
		if n := counts[ct]; n > 0 {
			summary = strings.TrimSpace(summary + fmt.Sprintf(" [%d %s]", n, ct))
		}
	}
	return summary
}
