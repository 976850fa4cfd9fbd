// Package ctxsnapshot implements the truncation-snapshot store: short-lived,
// size-bounded, optionally-compressed copies of messages dropped by a single
// truncation event, recoverable by id.
package ctxsnapshot

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/contextkeep/contextkeep/ctxerr"
	"github.com/contextkeep/contextkeep/types"
)

// Defaults per §4.7 / §9 Open Questions.
const (
	DefaultMaxSnapshots             = 3
	DefaultMaxSnapshotSize           = 256 * 1024
	DefaultCompressionThresholdBytes = 1024
	DefaultExpiration                = 15 * time.Minute
)

// Snapshot is a recoverable, bounded, optionally-compressed copy of a set of
// dropped messages.
type Snapshot struct {
	SnapshotID string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Compressed bool
	SizeBytes  int
	payload    []byte
}

// TruncationState pairs a snapshot with the truncation event that produced it.
type TruncationState struct {
	TruncationID        string
	TruncatedAt         time.Time
	Reason              string
	TruncatedMessageIDs []string
	Snapshot            Snapshot
}

// Config configures a Store.
type Config struct {
	MaxSnapshots int
	// MaxSnapshotSize is the per-snapshot byte ceiling, post-compression.
	MaxSnapshotSize int

	// EnableCompression and CompressionThresholdBytes are independent
	// knobs: the byte threshold can be tuned without disabling compression
	// outright (§9 Open Questions).
	EnableCompression         bool
	CompressionThresholdBytes int

	ExpirationMs int64
}

func (c Config) normalized() Config {
	if c.MaxSnapshots <= 0 {
		c.MaxSnapshots = DefaultMaxSnapshots
	}
	if c.MaxSnapshotSize <= 0 {
		c.MaxSnapshotSize = DefaultMaxSnapshotSize
	}
	if c.CompressionThresholdBytes <= 0 {
		c.CompressionThresholdBytes = DefaultCompressionThresholdBytes
	}
	if c.ExpirationMs <= 0 {
		c.ExpirationMs = DefaultExpiration.Milliseconds()
	}
	return c
}

type entry struct {
	state   TruncationState
	element *list.Element
}

// Store is a thread-safe, bounded, expiring LRU of truncation snapshots.
// Grounded on the teacher's MemoryStore deep-copy discipline, with
// eviction/expiration behavior adapted from its Redis store's TTL
// convention to an in-process LRU (no distributed-store caller exists for
// this spec — see DESIGN.md).
type Store struct {
	mu      sync.Mutex
	cfg     Config
	byID    map[string]*entry
	lru     *list.List // front = most recently used
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewStore creates a snapshot store. encoder/decoder are created lazily and
// reused across saves when compression is enabled.
func NewStore(cfg Config) (*Store, error) {
	cfg = cfg.normalized()
	s := &Store{
		cfg:  cfg,
		byID: make(map[string]*entry),
		lru:  list.New(),
	}
	if cfg.EnableCompression {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		s.encoder, s.decoder = enc, dec
	}
	return s, nil
}

// SaveSnapshot serializes messages, optionally compresses them, and stores
// the result under truncationID, evicting the least-recently-used entry if
// the store is already at capacity. Saving to an existing id overwrites it.
func (s *Store) SaveSnapshot(truncationID string, messages []types.Message, reason string) error {
	_, err := s.Save(truncationID, messages, reason)
	return err
}

// Save is the full-fidelity form of SaveSnapshot, returning the resulting
// TruncationState.
func (s *Store) Save(truncationID string, messages []types.Message, reason string) (TruncationState, error) {
	raw, err := json.Marshal(messages)
	if err != nil {
		return TruncationState{}, err
	}

	payload := raw
	compressed := false
	if s.cfg.EnableCompression && len(raw) >= s.cfg.CompressionThresholdBytes {
		candidate := s.encoder.EncodeAll(raw, nil)
		if len(candidate) < len(raw) {
			payload, compressed = candidate, true
		}
	}

	if len(payload) > s.cfg.MaxSnapshotSize {
		return TruncationState{}, &ctxerr.SnapshotTooLargeError{
			TruncationID: truncationID,
			SizeBytes:    len(payload),
			MaxBytes:     s.cfg.MaxSnapshotSize,
		}
	}

	now := time.Now()
	state := TruncationState{
		TruncationID:        truncationID,
		TruncatedAt:         now,
		Reason:              reason,
		TruncatedMessageIDs: messageIDs(messages),
		Snapshot: Snapshot{
			SnapshotID: truncationID,
			CreatedAt:  now,
			ExpiresAt:  now.Add(time.Duration(s.cfg.ExpirationMs) * time.Millisecond),
			Compressed: compressed,
			SizeBytes:  len(payload),
			payload:    payload,
		},
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[truncationID]; ok {
		s.lru.Remove(existing.element)
		delete(s.byID, truncationID)
	}

	for len(s.byID) >= s.cfg.MaxSnapshots {
		oldest := s.lru.Back()
		if oldest == nil {
			break
		}
		s.lru.Remove(oldest)
		delete(s.byID, oldest.Value.(string))
	}

	elem := s.lru.PushFront(truncationID)
	s.byID[truncationID] = &entry{state: state, element: elem}

	return state, nil
}

// Recover returns the messages dropped by truncationID, or ok=false if the
// id is unknown or the snapshot has expired. A successful recover bumps the
// entry's LRU position.
func (s *Store) Recover(truncationID string) (messages []types.Message, ok bool) {
	s.mu.Lock()
	e, found := s.lookupLocked(truncationID)
	s.mu.Unlock()
	if !found {
		return nil, false
	}

	payload := e.Snapshot.payload
	if e.Snapshot.Compressed {
		decoded, err := s.decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, false
		}
		payload = decoded
	}

	var decoded []types.Message
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, false
	}
	return decoded, true
}

// GetState returns the TruncationState for truncationID, or ok=false if
// unknown or expired. A successful call bumps the entry's LRU position.
func (s *Store) GetState(truncationID string) (TruncationState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, found := s.lookupLocked(truncationID)
	if !found {
		return TruncationState{}, false
	}
	return state, true
}

// lookupLocked returns the state for id, bumping its LRU position, unless
// it is missing or expired (an expired entry is evicted on touch).
func (s *Store) lookupLocked(id string) (TruncationState, bool) {
	e, ok := s.byID[id]
	if !ok {
		return TruncationState{}, false
	}
	if time.Now().After(e.state.Snapshot.ExpiresAt) {
		s.lru.Remove(e.element)
		delete(s.byID, id)
		return TruncationState{}, false
	}
	s.lru.MoveToFront(e.element)
	return e.state, true
}

// ListRecoverable returns every non-expired TruncationState, most-recently
// used first.
func (s *Store) ListRecoverable() []TruncationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]TruncationState, 0, len(s.byID))
	for el := s.lru.Front(); el != nil; el = el.Next() {
		id := el.Value.(string)
		e := s.byID[id]
		if now.After(e.state.Snapshot.ExpiresAt) {
			continue
		}
		out = append(out, e.state)
	}
	return out
}

// Cleanup removes every expired entry and returns the number removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for el := s.lru.Front(); el != nil; {
		next := el.Next()
		id := el.Value.(string)
		if now.After(s.byID[id].state.Snapshot.ExpiresAt) {
			s.lru.Remove(el)
			delete(s.byID, id)
			removed++
		}
		el = next
	}
	return removed
}

// Clear removes every snapshot, expired or not.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*entry)
	s.lru.Init()
}

// Size returns the number of snapshots currently held, including expired
// entries not yet touched.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func messageIDs(messages []types.Message) []string {
	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	return ids
}
