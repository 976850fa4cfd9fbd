package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_GetContent(t *testing.T) {
	t.Run("plain content", func(t *testing.T) {
		m := Message{Role: RoleUser, Content: "hello"}
		assert.Equal(t, "hello", m.GetContent())
	})

	t.Run("parts concatenated", func(t *testing.T) {
		m := Message{Role: RoleAssistant}
		m.AddPart(NewTextPart("foo "))
		m.AddPart(NewToolUsePart("id1", "search", nil))
		m.AddPart(NewTextPart("bar"))
		assert.Equal(t, "foo bar", m.GetContent())
	})
}

func TestMessage_IsMultimodal(t *testing.T) {
	m := Message{Role: RoleUser, Content: "hi"}
	assert.False(t, m.IsMultimodal())

	m.AddPart(NewTextPart("hi"))
	assert.True(t, m.IsMultimodal())
}

func TestMessage_SetTextContent_ClearsParts(t *testing.T) {
	m := Message{Role: RoleUser}
	m.AddPart(NewTextPart("x"))
	require.True(t, m.IsMultimodal())

	m.SetTextContent("plain")
	assert.False(t, m.IsMultimodal())
	assert.Equal(t, "plain", m.Content)
}

func TestMessage_ToolParts(t *testing.T) {
	m := Message{Role: RoleAssistant}
	m.AddPart(NewToolUsePart("call_1", "search", nil))
	m.AddPart(NewTextPart("thinking"))

	result := Message{Role: RoleTool}
	result.AddPart(NewToolResultPart("call_1", "result data"))

	assert.Len(t, m.ToolUseParts(), 1)
	assert.Equal(t, "call_1", m.ToolUseParts()[0].ID)
	assert.Len(t, result.ToolResultParts(), 1)
	assert.Equal(t, "call_1", result.ToolResultParts()[0].ToolUseID)
}

func TestLineage(t *testing.T) {
	t.Run("none by default", func(t *testing.T) {
		m := Message{Role: RoleUser}
		assert.False(t, m.IsSummary())
		assert.Empty(t, m.CondenseID())
		assert.Empty(t, m.TruncationParent())
	})

	t.Run("summary lineage", func(t *testing.T) {
		m := Message{Role: RoleAssistant, Lineage: SummaryLineage("condense-1")}
		assert.True(t, m.IsSummary())
		assert.Equal(t, "condense-1", m.CondenseID())
		assert.False(t, m.Lineage.IsTruncated())
	})

	t.Run("truncated lineage", func(t *testing.T) {
		m := Message{Role: RoleUser, Lineage: TruncatedLineage("trunc-1")}
		assert.True(t, m.Lineage.IsTruncated())
		assert.Equal(t, "trunc-1", m.TruncationParent())
		assert.False(t, m.IsSummary())
	})
}

func TestPriority_String(t *testing.T) {
	tests := []struct {
		p    Priority
		want string
	}{
		{PrioritySystem, "SYSTEM"},
		{PriorityToolPair, "TOOL_PAIR"},
		{PriorityNormal, "NORMAL"},
		{PriorityLow, "LOW"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.p.String())
	}
	assert.True(t, PrioritySystem > PriorityToolPair)
	assert.True(t, PriorityToolPair > PriorityNormal)
	assert.True(t, PriorityNormal > PriorityLow)
}

func TestMessage_Clone_IsDeep(t *testing.T) {
	original := Message{
		Role:     RoleUser,
		Metadata: map[string]any{"k": "v"},
	}
	original.AddPart(NewTextPart("hi"))

	clone := original.Clone()
	clone.Parts[0].Text = "mutated"
	clone.Metadata["k"] = "mutated"

	assert.Equal(t, "hi", original.Parts[0].Text)
	assert.Equal(t, "v", original.Metadata["k"])
}

func TestCloneMessages(t *testing.T) {
	messages := []Message{
		{ID: "1", Role: RoleUser, Content: "a"},
		{ID: "2", Role: RoleAssistant, Content: "b"},
	}
	clones := CloneMessages(messages)
	require.Len(t, clones, 2)
	clones[0].Content = "mutated"
	assert.Equal(t, "a", messages[0].Content)
}

func TestMessage_Summary_DescribesMultimodalParts(t *testing.T) {
	m := Message{ID: "m1", Role: RoleAssistant, CreatedAt: time.Now()}
	m.AddPart(NewTextPart("answer:"))
	m.AddPart(NewImagePart("image/png", "x"))

	summary := m.Summary()
	assert.Contains(t, summary, "answer:")
	assert.Contains(t, summary, "[1 image]")
}

func TestMessage_Summary_ReturnsPlainContentUnchanged(t *testing.T) {
	m := Message{ID: "m1", Role: RoleUser, Content: "plain text"}
	assert.Equal(t, "plain text", m.Summary())
}

func TestMessage_JSONRoundTrip_MultimodalContentUnmodified(t *testing.T) {
	m := Message{ID: "m1", Role: RoleAssistant, CreatedAt: time.Now()}
	m.AddPart(NewTextPart("answer:"))
	m.AddPart(NewImagePart("image/png", "x"))

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	_, hasContent := decoded["content"]
	assert.False(t, hasContent, "Content is empty and omitempty, so it must not appear on the wire")

	var roundTripped Message
	require.NoError(t, json.Unmarshal(data, &roundTripped))
	assert.Equal(t, m.Parts, roundTripped.Parts)
	assert.Equal(t, "", roundTripped.Content)
}
