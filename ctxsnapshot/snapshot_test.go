package ctxsnapshot

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextkeep/contextkeep/types"
)

func sampleMessages() []types.Message {
	return []types.Message{
		{ID: "1", Role: types.RoleUser, Content: "hello"},
		{ID: "2", Role: types.RoleAssistant, Content: "world"},
	}
}

func TestStore_SaveAndRecover_ByteForByte(t *testing.T) {
	store, err := NewStore(Config{})
	require.NoError(t, err)

	_, err = store.Save("trunc-1", sampleMessages(), "critical-pressure")
	require.NoError(t, err)

	recovered, ok := store.Recover("trunc-1")
	require.True(t, ok)
	assert.Equal(t, sampleMessages(), recovered)
}

func TestStore_SaveAndRecover_ByteForByte_MultimodalContent(t *testing.T) {
	store, err := NewStore(Config{})
	require.NoError(t, err)

	original := []types.Message{
		{ID: "1", Role: types.RoleUser, Content: "describe this"},
		{ID: "2", Role: types.RoleAssistant, Parts: []types.ContentPart{
			types.NewTextPart("looking at it now"),
			types.NewImagePart("image/png", "base64data"),
			types.NewToolUsePart("call-1", "zoom", json.RawMessage(`{"factor":2}`)),
		}},
	}

	_, err = store.Save("trunc-multimodal", original, "critical-pressure")
	require.NoError(t, err)

	recovered, ok := store.Recover("trunc-multimodal")
	require.True(t, ok)
	assert.Equal(t, original, recovered)
	assert.Empty(t, recovered[1].Content, "Parts-bearing message must not gain a synthesized Content field")
}

func TestStore_RecoverUnknownID(t *testing.T) {
	store, err := NewStore(Config{})
	require.NoError(t, err)

	_, ok := store.Recover("missing")
	assert.False(t, ok)
}

func TestStore_EvictsLeastRecentlyUsed(t *testing.T) {
	store, err := NewStore(Config{MaxSnapshots: 2})
	require.NoError(t, err)

	_, err = store.Save("a", sampleMessages(), "r")
	require.NoError(t, err)
	_, err = store.Save("b", sampleMessages(), "r")
	require.NoError(t, err)

	// Touch "a" so "b" becomes the least-recently-used.
	_, ok := store.Recover("a")
	require.True(t, ok)

	_, err = store.Save("c", sampleMessages(), "r")
	require.NoError(t, err)

	assert.Equal(t, 2, store.Size())
	_, ok = store.Recover("b")
	assert.False(t, ok, "b should have been evicted as least-recently-used")
	_, ok = store.Recover("a")
	assert.True(t, ok)
	_, ok = store.Recover("c")
	assert.True(t, ok)
}

func TestStore_OverwritesExistingID(t *testing.T) {
	store, err := NewStore(Config{MaxSnapshots: 2})
	require.NoError(t, err)

	_, err = store.Save("a", sampleMessages(), "first")
	require.NoError(t, err)
	_, err = store.Save("a", []types.Message{{ID: "9", Role: types.RoleUser, Content: "new"}}, "second")
	require.NoError(t, err)

	assert.Equal(t, 1, store.Size())
	state, ok := store.GetState("a")
	require.True(t, ok)
	assert.Equal(t, "second", state.Reason)
}

func TestStore_ExpiredSnapshotInvisible(t *testing.T) {
	store, err := NewStore(Config{ExpirationMs: 1})
	require.NoError(t, err)

	_, err = store.Save("a", sampleMessages(), "r")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, ok := store.Recover("a")
	assert.False(t, ok)
	_, ok = store.GetState("a")
	assert.False(t, ok)
	assert.Empty(t, store.ListRecoverable())
}

func TestStore_Cleanup_RemovesExpired(t *testing.T) {
	store, err := NewStore(Config{ExpirationMs: 1, MaxSnapshots: 5})
	require.NoError(t, err)

	_, err = store.Save("a", sampleMessages(), "r")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	removed := store.Cleanup()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, store.Size())
}

func TestStore_Clear(t *testing.T) {
	store, err := NewStore(Config{})
	require.NoError(t, err)
	_, err = store.Save("a", sampleMessages(), "r")
	require.NoError(t, err)

	store.Clear()
	assert.Equal(t, 0, store.Size())
}

func TestStore_RejectsOversizedSnapshot(t *testing.T) {
	store, err := NewStore(Config{MaxSnapshotSize: 10})
	require.NoError(t, err)

	big := []types.Message{{ID: "1", Role: types.RoleUser, Content: strings.Repeat("x", 1000)}}
	_, err = store.Save("a", big, "r")
	require.Error(t, err)
}

func TestStore_CompressesLargePayloadsOnly(t *testing.T) {
	store, err := NewStore(Config{EnableCompression: true, CompressionThresholdBytes: 100})
	require.NoError(t, err)

	small := sampleMessages()
	state, err := store.Save("small", small, "r")
	require.NoError(t, err)
	assert.False(t, state.Snapshot.Compressed)

	big := []types.Message{{ID: "1", Role: types.RoleUser, Content: strings.Repeat("compressible text ", 200)}}
	state, err = store.Save("big", big, "r")
	require.NoError(t, err)
	assert.True(t, state.Snapshot.Compressed)

	recovered, ok := store.Recover("big")
	require.True(t, ok)
	assert.Equal(t, big, recovered)
}
