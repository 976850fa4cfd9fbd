// Package ctxcompress drives non-destructive summarization: it replaces a
// contiguous interior range of a transcript with a single summary message,
// protecting prior summaries from being re-summarized, and degrades to
// sliding-window truncation when the fallback chain is exhausted.
package ctxcompress

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextkeep/contextkeep/ctxerr"
	"github.com/contextkeep/contextkeep/ctxtruncate"
	"github.com/contextkeep/contextkeep/tokenizer"
	"github.com/contextkeep/contextkeep/types"
)

// DefaultTargetRatio is used when Params.TargetRatio is zero or negative.
const DefaultTargetRatio = 0.3

// CompactionWarningThreshold is the compactionCount value that triggers
// onCompactionWarning — fired on every compaction at or past the
// threshold, not just the first (§9 Open Questions).
const CompactionWarningThreshold = 2

// minCandidateMessages is the smallest interior range compression will run
// against; below this it isn't worth replacing with a summary.
const minCandidateMessages = 4

// Summarizer is the capability this package consumes — typically
// ctxfallback.Chain, but any {summary, error} producer fits.
type Summarizer interface {
	Summarize(messages []types.Message, directive string) (string, error)
}

// ProtectionStrategy names how prior summary messages are shielded from
// being selected as compression candidates again.
type ProtectionStrategy string

// Protection strategies.
const (
	// ProtectAll protects every summary message unconditionally.
	ProtectAll ProtectionStrategy = "all"
	// ProtectRecent protects the most recent N summaries by CreatedAt.
	ProtectRecent ProtectionStrategy = "recent"
	// ProtectWeighted scores candidates and protects the highest-scoring N.
	ProtectWeighted ProtectionStrategy = "weighted"
)

// DefaultProtectionStrategy and DefaultProtectedCount match the source's
// documented default: "recent" with N = 5.
const (
	DefaultProtectionStrategy = ProtectRecent
	DefaultProtectedCount     = 5
)

// Params configures a single compress pass.
type Params struct {
	RecentCount       int
	TargetRatio       float64
	Directive         string
	Strategy          ProtectionStrategy
	ProtectedCount    int
	PreserveToolPairs bool
	Tokenizer         tokenizer.TokenCounter

	// Snapshot is passed through to the fallback truncate path unchanged.
	Snapshot ctxtruncate.SnapshotStore

	OnFallbackWarning   func(message string)
	OnCompactionWarning func(count int, totalTokensCompressed int)
}

// Result is the outcome of a compress pass.
type Result struct {
	Messages   []types.Message
	Action     string
	TokenCount int
}

// Driver holds session-scoped compaction counters: compactionCount and
// totalTokensCompressed, read and reset independently of any single pass.
type Driver struct {
	mu                    sync.Mutex
	compactionCount       int
	totalTokensCompressed int
}

// NewDriver creates a compress driver with zeroed counters.
func NewDriver() *Driver {
	return &Driver{}
}

// Counters returns the current compaction count and accumulated tokens
// compressed this session.
func (d *Driver) Counters() (compactionCount int, totalTokensCompressed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.compactionCount, d.totalTokensCompressed
}

// ResetCounters zeroes both counters.
func (d *Driver) ResetCounters() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.compactionCount, d.totalTokensCompressed = 0, 0
}

// Compress selects an interior range of messages, summarizes it via
// summarizer, and splices in a single summary message. On AllModelsFailed it
// degrades to sliding-window truncation, marking every retained
// non-system, non-summary message with a fresh truncationParent id. Any
// other summarizer error leaves messages unchanged.
func (d *Driver) Compress(messages []types.Message, summarizer Summarizer, params Params) Result {
	ratio := params.TargetRatio
	if ratio <= 0 {
		ratio = DefaultTargetRatio
	}

	start, end := selectRange(messages, params.RecentCount)
	if end-start < minCandidateMessages {
		return Result{
			Messages:   types.CloneMessages(messages),
			Action:     "compress:skipped - range too small",
			TokenCount: tokenizer.CountMessagesTokens(params.Tokenizer, messages),
		}
	}

	candidates := messages[start:end]
	protected := protectionFilter(messages, params)
	toSummarize := make([]types.Message, 0, len(candidates))
	for i, m := range candidates {
		if protected[start+i] {
			continue
		}
		toSummarize = append(toSummarize, m)
	}

	if len(toSummarize) < minCandidateMessages {
		return Result{
			Messages:   types.CloneMessages(messages),
			Action:     "compress:skipped - range too small",
			TokenCount: tokenizer.CountMessagesTokens(params.Tokenizer, messages),
		}
	}

	summary, err := summarizer.Summarize(toSummarize, params.Directive)
	if err != nil {
		var allFailed *ctxerr.AllModelsFailedError
		if errors.As(err, &allFailed) {
			return d.fallbackToTruncate(messages, params, err)
		}
		return Result{
			Messages:   types.CloneMessages(messages),
			Action:     fmt.Sprintf("compress:failed - %s", err),
			TokenCount: tokenizer.CountMessagesTokens(params.Tokenizer, messages),
		}
	}

	summaryMessage := types.Message{
		ID:        uuid.NewString(),
		Role:      types.RoleSystem,
		Content:   summary,
		CreatedAt: time.Now(),
		Lineage:   types.SummaryLineage(uuid.NewString()),
		Metadata: map[string]any{
			"compressedCount": len(toSummarize),
		},
	}

	result := make([]types.Message, 0, len(messages)-len(toSummarize)+1)
	result = append(result, messages[:start]...)
	result = append(result, summaryMessage)
	for i := start; i < end; i++ {
		if protected[i] {
			result = append(result, messages[i])
		}
	}
	result = append(result, messages[end:]...)

	tokensCompressed := tokenizer.CountMessagesTokens(params.Tokenizer, toSummarize)
	d.recordCompaction(tokensCompressed, params.OnCompactionWarning)

	return Result{
		Messages:   result,
		Action:     "compress:completed",
		TokenCount: tokenizer.CountMessagesTokens(params.Tokenizer, result),
	}
}

func (d *Driver) recordCompaction(tokensCompressed int, onWarning func(count int, totalTokensCompressed int)) {
	d.mu.Lock()
	d.compactionCount++
	d.totalTokensCompressed += tokensCompressed
	count, total := d.compactionCount, d.totalTokensCompressed
	d.mu.Unlock()

	if count >= CompactionWarningThreshold && onWarning != nil {
		onWarning(count, total)
	}
}

// fallbackToTruncate degrades to sliding-window truncation when the
// fallback chain is exhausted, per §4.4's hardest subpath.
func (d *Driver) fallbackToTruncate(messages []types.Message, params Params, cause error) Result {
	if params.OnFallbackWarning != nil {
		params.OnFallbackWarning(fmt.Sprintf("compress:failed - %s", cause))
	}

	truncationID := uuid.NewString()
	out := ctxtruncate.Truncate(messages, ctxtruncate.Params{
		TargetTokens:      0,
		RecentCount:       params.RecentCount,
		PreserveToolPairs: params.PreserveToolPairs,
		Tokenizer:         params.Tokenizer,
		Snapshot:          params.Snapshot,
		TruncationReason:  "compress-fallback",
	})

	lineage := types.TruncatedLineage(truncationID)
	for i := range out.Messages {
		if out.Messages[i].Role == types.RoleSystem || out.Messages[i].IsSummary() {
			continue
		}
		out.Messages[i].Lineage = lineage
	}

	return Result{
		Messages:   out.Messages,
		Action:     fmt.Sprintf("fallback-truncate:%d messages removed", out.RemovedCount),
		TokenCount: out.TokenCount,
	}
}

// selectRange picks the interior range compression operates on: from the
// first non-system index through len(messages)-recentCount, refusing (by
// returning a zero-width range) when the tail would swallow everything.
func selectRange(messages []types.Message, recentCount int) (start, end int) {
	start = 0
	for start < len(messages) && messages[start].Role == types.RoleSystem {
		start++
	}
	end = len(messages) - recentCount
	if end < start+1 {
		end = start + 1
	}
	if end > len(messages) {
		end = len(messages)
	}
	return start, end
}

// protectionFilter returns the set of message indices protected from being
// selected as compression candidates: prior summary messages under the
// configured strategy.
func protectionFilter(messages []types.Message, params Params) map[int]bool {
	protected := make(map[int]bool)

	var summaryIndices []int
	for i, m := range messages {
		if m.IsSummary() {
			summaryIndices = append(summaryIndices, i)
		}
	}
	if len(summaryIndices) == 0 {
		return protected
	}

	strategy := params.Strategy
	if strategy == "" {
		strategy = DefaultProtectionStrategy
	}
	n := params.ProtectedCount
	if n <= 0 {
		n = DefaultProtectedCount
	}

	switch strategy {
	case ProtectAll:
		for _, i := range summaryIndices {
			protected[i] = true
		}
	case ProtectWeighted:
		for _, i := range weightedTopN(messages, summaryIndices, n) {
			protected[i] = true
		}
	case ProtectRecent:
		fallthrough
	default:
		for _, i := range recentTopN(messages, summaryIndices, n) {
			protected[i] = true
		}
	}

	return protected
}

func recentTopN(messages []types.Message, indices []int, n int) []int {
	sorted := append([]int(nil), indices...)
	sort.Slice(sorted, func(a, b int) bool {
		return messages[sorted[a]].CreatedAt.After(messages[sorted[b]].CreatedAt)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// weightedTopN scores each candidate as
// 0.4*normalized_tokens + 0.4*normalized_recency + 0.2*normalized_compressedCount
// and returns the top-n indices.
func weightedTopN(messages []types.Message, indices []int, n int) []int {
	maxTokens, maxCompressed := 0, 0
	var oldest, newest time.Time
	for i, idx := range indices {
		m := messages[idx]
		if m.Tokens > maxTokens {
			maxTokens = m.Tokens
		}
		if count := compressedCount(m); count > maxCompressed {
			maxCompressed = count
		}
		if i == 0 || m.CreatedAt.Before(oldest) {
			oldest = m.CreatedAt
		}
		if i == 0 || m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}
	}

	span := newest.Sub(oldest).Seconds()

	type scored struct {
		index int
		score float64
	}
	scores := make([]scored, 0, len(indices))
	for _, idx := range indices {
		m := messages[idx]

		normTokens := 0.0
		if maxTokens > 0 {
			normTokens = float64(m.Tokens) / float64(maxTokens)
		}

		normRecency := 0.0
		if span > 0 {
			normRecency = m.CreatedAt.Sub(oldest).Seconds() / span
		}

		normCompressed := 0.0
		if maxCompressed > 0 {
			normCompressed = float64(compressedCount(m)) / float64(maxCompressed)
		}

		score := 0.4*normTokens + 0.4*normRecency + 0.2*normCompressed
		scores = append(scores, scored{index: idx, score: score})
	}

	sort.Slice(scores, func(a, b int) bool { return scores[a].score > scores[b].score })
	if len(scores) > n {
		scores = scores[:n]
	}

	out := make([]int, len(scores))
	for i, s := range scores {
		out[i] = s.index
	}
	return out
}

func compressedCount(m types.Message) int {
	raw, ok := m.Metadata["compressedCount"]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
