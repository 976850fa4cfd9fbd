package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/contextkeep/contextkeep/types"
)

func TestCountMessageTokens_UsesCachedValue(t *testing.T) {
	m := types.Message{Role: types.RoleUser, Content: "hello world", Tokens: 42}
	assert.Equal(t, 42, CountMessageTokens(DefaultTokenCounter, m))
}

func TestCountMessageTokens_PlainContent(t *testing.T) {
	m := types.Message{Role: types.RoleUser, Content: "one two three"}
	got := CountMessageTokens(DefaultTokenCounter, m)
	assert.True(t, got > 0)
}

func TestCountMessageTokens_MultimodalIncludesToolPayloads(t *testing.T) {
	m := types.Message{Role: types.RoleTool}
	m.AddPart(types.NewToolResultPart("call_1", "some moderately long tool output here"))

	got := CountMessageTokens(DefaultTokenCounter, m)
	assert.True(t, got > 0)
}

func TestCountMessagesTokens(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleUser, Content: "hi"},
		{Role: types.RoleAssistant, Content: "hello there"},
	}
	total := CountMessagesTokens(DefaultTokenCounter, messages)
	individual := CountMessageTokens(DefaultTokenCounter, messages[0]) + CountMessageTokens(DefaultTokenCounter, messages[1])
	assert.Equal(t, individual, total)
}
