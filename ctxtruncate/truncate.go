// Package ctxtruncate implements the sliding-window truncation step: dropping
// oldest non-system, non-recent messages until a target token count is
// reached, with optional atomic tool_use/tool_result pair preservation.
package ctxtruncate

import (
	"github.com/google/uuid"

	"github.com/contextkeep/contextkeep/tokenizer"
	"github.com/contextkeep/contextkeep/types"
)

// SnapshotStore is the narrow capability ctxtruncate needs from the
// truncation-snapshot store: save the dropped messages under a fresh id.
// ctxsnapshot.Store satisfies this interface.
type SnapshotStore interface {
	SaveSnapshot(truncationID string, messages []types.Message, reason string) error
}

// Params configures a single truncate pass.
type Params struct {
	TargetTokens      int
	RecentCount       int
	PreserveToolPairs bool
	Tokenizer         tokenizer.TokenCounter

	// Snapshot, if non-nil, receives the dropped messages before Truncate
	// returns. A snapshot-storage failure is non-fatal here: TruncationID is
	// simply omitted (see §4.3 failure semantics).
	Snapshot SnapshotStore

	// TruncationReason labels the snapshot, e.g. "critical-pressure".
	TruncationReason string
}

// Result is the outcome of a truncate pass.
type Result struct {
	Messages     []types.Message
	RemovedCount int
	TokenCount   int

	// TruncationID references the stored snapshot of dropped messages, when
	// Params.Snapshot was supplied and the save succeeded.
	TruncationID string
}

// Truncate drops oldest non-system, non-recent messages, oldest-first,
// until the running token count is at or below params.TargetTokens or the
// droppable middle block is exhausted.
func Truncate(messages []types.Message, params Params) Result {
	sys, middle, recent := partition(messages, params.RecentCount)

	pairOf := pairPartnerWithinMiddle(messages, middle)

	kept := make([]bool, len(middle))
	for i := range kept {
		kept[i] = true
	}

	counts := make([]int, len(middle))
	for i, m := range middle {
		counts[i] = tokenizer.CountMessageTokens(params.Tokenizer, m)
	}

	total := tokenizer.CountMessagesTokens(params.Tokenizer, sys) +
		tokenizer.CountMessagesTokens(params.Tokenizer, recent)
	for _, c := range counts {
		total += c
	}

	dropped := make([]types.Message, 0)

	for i := range middle {
		if total <= params.TargetTokens {
			break
		}
		if !kept[i] {
			continue
		}

		if params.PreserveToolPairs {
			if partner, ok := pairOf[i]; ok {
				if partner == pairPartnerKeptElsewhere {
					// Partner lives in the recent tail or system prefix:
					// the pair is kept, this half cannot be dropped alone.
					continue
				}
				kept[i] = false
				kept[partner] = false
				total -= counts[i] + counts[partner]
				dropped = append(dropped, middle[i], middle[partner])
				continue
			}
		}

		kept[i] = false
		total -= counts[i]
		dropped = append(dropped, middle[i])
	}

	result := make([]types.Message, 0, len(sys)+len(middle)+len(recent))
	result = append(result, sys...)
	for i, m := range middle {
		if kept[i] {
			result = append(result, m)
		}
	}
	result = append(result, recent...)

	out := Result{
		Messages:     result,
		RemovedCount: len(dropped),
		TokenCount:   total,
	}

	if len(dropped) > 0 && params.Snapshot != nil {
		truncationID := uuid.NewString()
		if err := params.Snapshot.SaveSnapshot(truncationID, dropped, params.TruncationReason); err == nil {
			out.TruncationID = truncationID
		}
	}

	return out
}

// partition splits messages into system (always kept, in order), a
// droppable middle block, and the recent tail (size recentCount, always
// kept), per the non-system subsequence order.
func partition(messages []types.Message, recentCount int) (sys, middle, recent []types.Message) {
	var nonSystem []types.Message
	for _, m := range messages {
		if m.Role == types.RoleSystem {
			sys = append(sys, m)
			continue
		}
		nonSystem = append(nonSystem, m)
	}

	if recentCount < 0 {
		recentCount = 0
	}
	if recentCount >= len(nonSystem) {
		return sys, nil, nonSystem
	}

	cut := len(nonSystem) - recentCount
	return sys, nonSystem[:cut], nonSystem[cut:]
}

// pairPartnerKeptElsewhere marks a tool pair whose partner lives outside the
// middle block (system prefix or recent tail) and so can never be dropped.
const pairPartnerKeptElsewhere = -1

// pairPartnerWithinMiddle maps a middle-block index to its tool-pair
// partner's middle-block index when both halves are in the middle block, or
// to pairPartnerKeptElsewhere when the partner lives in the system prefix or
// recent tail (and so can never be dropped).
func pairPartnerWithinMiddle(all []types.Message, middle []types.Message) map[int]int {
	fullCount := make(map[string]int)
	for _, m := range all {
		for _, use := range m.ToolUseParts() {
			fullCount[use.ID]++
		}
		for _, res := range m.ToolResultParts() {
			fullCount[res.ToolUseID]++
		}
	}

	indicesByID := make(map[string][]int)
	for i := range middle {
		ids := make(map[string]struct{})
		for _, use := range middle[i].ToolUseParts() {
			ids[use.ID] = struct{}{}
		}
		for _, res := range middle[i].ToolResultParts() {
			ids[res.ToolUseID] = struct{}{}
		}
		for id := range ids {
			indicesByID[id] = append(indicesByID[id], i)
		}
	}

	result := make(map[int]int)
	for id, indices := range indicesByID {
		if fullCount[id] > len(indices) {
			for _, i := range indices {
				result[i] = pairPartnerKeptElsewhere
			}
			continue
		}
		if len(indices) == 2 {
			result[indices[0]] = indices[1]
			result[indices[1]] = indices[0]
		}
		// len(indices) == 1 with both halves inside that single message (or
		// the partner simply absent from the transcript): nothing to pair.
	}

	return result
}
