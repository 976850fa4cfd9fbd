package ctxtruncate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextkeep/contextkeep/tokenizer"
	"github.com/contextkeep/contextkeep/types"
)

func textMsg(role types.Role, text string) types.Message {
	return types.Message{Role: role, Content: text}
}

func TestTruncate_KeepsSystemAndRecent(t *testing.T) {
	messages := []types.Message{
		textMsg(types.RoleSystem, "system prompt"),
		textMsg(types.RoleUser, "one two three four five six seven eight"),
		textMsg(types.RoleAssistant, "nine ten eleven twelve thirteen fourteen"),
		textMsg(types.RoleUser, "fifteen sixteen seventeen eighteen"),
		textMsg(types.RoleAssistant, "recent reply"),
	}

	result := Truncate(messages, Params{
		TargetTokens: 1,
		RecentCount:  1,
		Tokenizer:    tokenizer.DefaultTokenCounter,
	})

	require.NotEmpty(t, result.Messages)
	assert.Equal(t, types.RoleSystem, result.Messages[0].Role)
	assert.Equal(t, "recent reply", result.Messages[len(result.Messages)-1].Content)
	assert.True(t, result.RemovedCount > 0)
}

func TestTruncate_StopsAtTargetTokens(t *testing.T) {
	messages := []types.Message{
		textMsg(types.RoleUser, "a b c d e f g h i j"),
		textMsg(types.RoleUser, "k l m n o p q r s t"),
		textMsg(types.RoleUser, "u v w x y z aa bb cc dd"),
	}

	result := Truncate(messages, Params{
		TargetTokens: 1000,
		RecentCount:  1,
		Tokenizer:    tokenizer.DefaultTokenCounter,
	})

	assert.Equal(t, 0, result.RemovedCount)
	assert.Len(t, result.Messages, 3)
}

func TestTruncate_PreservesToolPairsAtomically(t *testing.T) {
	call := types.Message{Role: types.RoleAssistant, Content: "padding text to give this message some weight"}
	call.AddPart(types.NewToolUsePart("call_1", "search", nil))

	result := types.Message{Role: types.RoleTool}
	result.AddPart(types.NewToolResultPart("call_1", "a fairly long tool result body with several words in it"))

	messages := []types.Message{
		call,
		result,
		textMsg(types.RoleUser, "recent message"),
	}

	out := Truncate(messages, Params{
		TargetTokens:      0,
		RecentCount:       1,
		PreserveToolPairs: true,
		Tokenizer:         tokenizer.DefaultTokenCounter,
	})

	// Either both halves of the pair are gone, or both remain.
	hasUse, hasResult := false, false
	for _, m := range out.Messages {
		if len(m.ToolUseParts()) > 0 {
			hasUse = true
		}
		if len(m.ToolResultParts()) > 0 {
			hasResult = true
		}
	}
	assert.Equal(t, hasUse, hasResult)
}

func TestTruncate_PairPartnerInRecentTailIsKept(t *testing.T) {
	call := types.Message{Role: types.RoleAssistant, Content: "padding"}
	call.AddPart(types.NewToolUsePart("call_1", "search", nil))

	result := types.Message{Role: types.RoleTool}
	result.AddPart(types.NewToolResultPart("call_1", "tool output"))

	messages := []types.Message{
		call,
		textMsg(types.RoleUser, "filler one"),
		textMsg(types.RoleUser, "filler two"),
		result, // in the recent tail
	}

	out := Truncate(messages, Params{
		TargetTokens:      0,
		RecentCount:       1,
		PreserveToolPairs: true,
		Tokenizer:         tokenizer.DefaultTokenCounter,
	})

	foundUse := false
	for _, m := range out.Messages {
		if len(m.ToolUseParts()) > 0 {
			foundUse = true
		}
	}
	assert.True(t, foundUse, "tool_use partner of a recent-tail tool_result must be kept")
}

func TestTruncate_SavesSnapshotOfDropped(t *testing.T) {
	messages := []types.Message{
		textMsg(types.RoleUser, "a b c d e f g h"),
		textMsg(types.RoleUser, "recent"),
	}

	saver := &fakeSnapshotStore{}
	out := Truncate(messages, Params{
		TargetTokens:     0,
		RecentCount:      1,
		Tokenizer:        tokenizer.DefaultTokenCounter,
		Snapshot:         saver,
		TruncationReason: "critical-pressure",
	})

	require.NotEmpty(t, out.TruncationID)
	assert.Equal(t, saver.lastID, out.TruncationID)
	assert.Equal(t, "critical-pressure", saver.lastReason)
}

type fakeSnapshotStore struct {
	lastID     string
	lastReason string
}

func (f *fakeSnapshotStore) SaveSnapshot(truncationID string, messages []types.Message, reason string) error {
	f.lastID = truncationID
	f.lastReason = reason
	return nil
}
