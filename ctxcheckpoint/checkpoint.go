// Package ctxcheckpoint implements a bounded LRU store of full-transcript
// snapshots used for rollback-based recovery.
package ctxcheckpoint

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextkeep/contextkeep/ctxerr"
	"github.com/contextkeep/contextkeep/types"
)

// DefaultMaxCheckpoints is used when Store is constructed with maxCheckpoints <= 0.
const DefaultMaxCheckpoints = 5

// Checkpoint is an immutable snapshot of the full message list at a point
// in time.
type Checkpoint struct {
	ID         string
	CreatedAt  time.Time
	Messages   []types.Message
	Reason     string
	Label      string
	TokenCount int
}

// CreateParams configures a new checkpoint.
type CreateParams struct {
	Label      string
	Reason     string
	TokenCount int
}

// RollbackResult is the outcome of rolling back to a checkpoint.
type RollbackResult struct {
	Messages           []types.Message
	DiscardedMessages  []types.Message
}

// Store is a thread-safe, bounded LRU of checkpoints, oldest-evicted-first.
// Grounded on the teacher's MemoryStore: an RWMutex-guarded map plus a
// creation-ordered eviction list, repurposed from full conversation
// persistence to point-in-time rollback snapshots.
type Store struct {
	mu             sync.RWMutex
	maxCheckpoints int
	byID           map[string]*Checkpoint
	order          []string // creation order, oldest first
}

// NewStore creates a checkpoint store bounded at maxCheckpoints entries.
func NewStore(maxCheckpoints int) *Store {
	if maxCheckpoints <= 0 {
		maxCheckpoints = DefaultMaxCheckpoints
	}
	return &Store{
		maxCheckpoints: maxCheckpoints,
		byID:           make(map[string]*Checkpoint),
	}
}

// Create stores a new checkpoint, evicting the oldest entry first if the
// store is already at capacity.
func (s *Store) Create(messages []types.Message, params CreateParams) Checkpoint {
	checkpoint := Checkpoint{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now(),
		Messages:   types.CloneMessages(messages),
		Reason:     params.Reason,
		Label:      params.Label,
		TokenCount: params.TokenCount,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) >= s.maxCheckpoints {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.byID, oldest)
	}

	s.byID[checkpoint.ID] = &checkpoint
	s.order = append(s.order, checkpoint.ID)

	return checkpoint
}

// List returns every checkpoint, newest first.
func (s *Store) List() []Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Checkpoint, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, *s.byID[s.order[i]])
	}
	return out
}

// Size returns the number of checkpoints currently held.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Newest returns the most recently created checkpoint, if any exists.
func (s *Store) Newest() (Checkpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return Checkpoint{}, false
	}
	return *s.byID[s.order[len(s.order)-1]], true
}

// NewestWithin returns the most recently created checkpoint if it was
// created within the last `window` duration.
func (s *Store) NewestWithin(window time.Duration) (Checkpoint, bool) {
	checkpoint, ok := s.Newest()
	if !ok {
		return Checkpoint{}, false
	}
	if time.Since(checkpoint.CreatedAt) > window {
		return Checkpoint{}, false
	}
	return checkpoint, true
}

// Rollback replaces currentMessages with the checkpoint's retained messages,
// returning the messages that were discarded in the process. Rollback
// against an unknown id returns ctxerr.ErrCheckpointNotFound.
func (s *Store) Rollback(id string, currentMessages []types.Message) (RollbackResult, error) {
	s.mu.RLock()
	checkpoint, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return RollbackResult{}, ctxerr.ErrCheckpointNotFound
	}

	return RollbackResult{
		Messages:          types.CloneMessages(checkpoint.Messages),
		DiscardedMessages: types.CloneMessages(currentMessages),
	}, nil
}
