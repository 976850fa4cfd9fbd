// Package ctxmanage implements the orchestrator: the single public entry
// point that drives a transcript through count → classify → prune →
// truncate → compress → recover, returning the final state and the
// sequence of actions taken. Grounded on the teacher's context-builder
// middleware staging (compute budget → classify → act → re-classify),
// generalized from a single pass into the full pipeline.
package ctxmanage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/contextkeep/contextkeep/ctxbudget"
	"github.com/contextkeep/contextkeep/ctxcheckpoint"
	"github.com/contextkeep/contextkeep/ctxcompress"
	"github.com/contextkeep/contextkeep/ctxerr"
	"github.com/contextkeep/contextkeep/ctxfallback"
	"github.com/contextkeep/contextkeep/ctxlog"
	"github.com/contextkeep/contextkeep/ctxmetrics"
	"github.com/contextkeep/contextkeep/ctxprune"
	"github.com/contextkeep/contextkeep/ctxsnapshot"
	"github.com/contextkeep/contextkeep/ctxtruncate"
	"github.com/contextkeep/contextkeep/tokenizer"
	"github.com/contextkeep/contextkeep/types"
)

// EmergencyKeepCount is the number of newest non-system messages kept by the
// emergency_clear recovery strategy.
const EmergencyKeepCount = 5

// AggressiveTruncateRatio is the fraction of historyBudget the
// aggressive_truncate recovery strategy targets.
const AggressiveTruncateRatio = 0.70

// RecentWindowForRollback bounds how recently a checkpoint must have been
// created to be eligible for rollback-based recovery.
const RecentWindowForRollback = 10 * time.Minute

// Config wires every dependency the orchestrator needs. Tokenizer is
// required; everything else has a working zero-value default.
type Config struct {
	Tokenizer tokenizer.TokenCounter

	BudgetParams ctxbudget.BudgetParams
	Thresholds   ctxbudget.Thresholds

	PruneConfig ctxprune.Config

	RecentCount       int
	PreserveToolPairs bool

	CompressEnabled bool
	CompressParams  ctxcompress.Params
	Summarizer      ctxcompress.Summarizer

	Checkpoints *ctxcheckpoint.Store
	Snapshots   *ctxsnapshot.Store
	Metrics     *ctxmetrics.Recorder

	OnFallbackWarning   func(message string)
	OnCompactionWarning func(count int, totalTokensCompressed int)
}

func (c Config) normalized() Config {
	if c.Thresholds == (ctxbudget.Thresholds{}) {
		c.Thresholds = ctxbudget.DefaultThresholds
	}
	if c.RecentCount <= 0 {
		c.RecentCount = 5
	}
	return c
}

// Result is the outcome of a single Manage call.
type Result struct {
	State      ctxbudget.ContextState
	TokenCount int
	BudgetUsed float64
	Actions    []string
	Checkpoint *ctxcheckpoint.Checkpoint
	Messages   []types.Message
}

// Orchestrator drives the full action pipeline against a single set of
// wired dependencies. It is safe for sequential reuse across many Manage
// calls against independent message lists; concurrent Manage calls against
// the same instance are undefined behavior (§5).
type Orchestrator struct {
	cfg            Config
	compressDriver *ctxcompress.Driver
}

// New constructs an Orchestrator. Tokenizer must be non-nil.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg.normalized(), compressDriver: ctxcompress.NewDriver()}
}

// chainSummarizer adapts a ctxfallback.Chain (context-aware) to the
// ctxcompress.Summarizer shape the compress driver expects.
type chainSummarizer struct {
	ctx   context.Context
	chain *ctxfallback.Chain
}

func (c chainSummarizer) Summarize(messages []types.Message, directive string) (string, error) {
	result, err := c.chain.Summarize(c.ctx, messages, directive)
	if err != nil {
		return "", err
	}
	return result.Summary, nil
}

// WithFallbackChain adapts chain into a ctxcompress.Summarizer bound to ctx,
// for callers who want to pass o.cfg.Summarizer = ctxmanage.WithFallbackChain(ctx, chain).
func WithFallbackChain(ctx context.Context, chain *ctxfallback.Chain) ctxcompress.Summarizer {
	return chainSummarizer{ctx: ctx, chain: chain}
}

// Manage runs messages through the full pipeline: count, classify, prune
// (if warranted), checkpoint + truncate + compress (if critical/overflow),
// and recovery (if still overflow), recomputing token count and
// classification between every phase. A tokenizer failure is the one
// failure mode that escapes as an error; every other internal failure
// degrades gracefully and is recorded in Actions.
func (o *Orchestrator) Manage(messages []types.Message) (Result, error) {
	current := types.CloneMessages(messages)
	var actions []string

	tokenCount, err := o.countTokens(current)
	if err != nil {
		return Result{}, err
	}
	budget := ctxbudget.CalculateTokenBudget(o.cfg.BudgetParams)
	state := ctxbudget.CalculateState(tokenCount, budget, o.cfg.Thresholds)

	if state == ctxbudget.StateHealthy {
		return o.result(state, tokenCount, budget, actions, nil, current), nil
	}

	if tokenCount >= ctxprune.PruneMinimumTokens {
		pruned := ctxprune.Prune(current, o.cfg.PruneConfig, o.cfg.Tokenizer)
		current = pruned.Messages
		actions = o.record(actions, state, tokenCount, fmt.Sprintf("prune:trimmed %d results", pruned.TrimmedCount))

		tokenCount, err = o.countTokens(current)
		if err != nil {
			return Result{}, err
		}
		state = ctxbudget.CalculateState(tokenCount, budget, o.cfg.Thresholds)
		if state == ctxbudget.StateHealthy {
			return o.result(state, tokenCount, budget, actions, nil, current), nil
		}
	}

	var checkpoint *ctxcheckpoint.Checkpoint
	if state == ctxbudget.StateCritical || state == ctxbudget.StateOverflow {
		if o.cfg.Checkpoints != nil {
			cp := o.cfg.Checkpoints.Create(current, ctxcheckpoint.CreateParams{
				Reason:     "pre-compression",
				TokenCount: tokenCount,
			})
			checkpoint = &cp
			actions = o.record(actions, state, tokenCount, "checkpoint:created")
		}

		targetTokens := int(float64(budget.HistoryBudget) * o.cfg.Thresholds.Warning)
		truncResult := ctxtruncate.Truncate(current, ctxtruncate.Params{
			TargetTokens:      targetTokens,
			RecentCount:       o.cfg.RecentCount,
			PreserveToolPairs: o.cfg.PreserveToolPairs,
			Tokenizer:         o.cfg.Tokenizer,
			Snapshot:          o.cfg.Snapshots,
			TruncationReason:  "critical-pressure",
		})
		current = truncResult.Messages
		actions = o.record(actions, state, tokenCount, fmt.Sprintf("truncate:removed %d messages", truncResult.RemovedCount))

		tokenCount, err = o.countTokens(current)
		if err != nil {
			return Result{}, err
		}
		state = ctxbudget.CalculateState(tokenCount, budget, o.cfg.Thresholds)

		if (state == ctxbudget.StateCritical || state == ctxbudget.StateOverflow) && o.cfg.CompressEnabled && o.cfg.Summarizer != nil {
			params := o.cfg.CompressParams
			params.RecentCount = o.cfg.RecentCount
			params.PreserveToolPairs = o.cfg.PreserveToolPairs
			params.Tokenizer = o.cfg.Tokenizer
			params.Snapshot = o.cfg.Snapshots
			if params.OnFallbackWarning == nil {
				params.OnFallbackWarning = o.cfg.OnFallbackWarning
			}
			if params.OnCompactionWarning == nil {
				params.OnCompactionWarning = o.cfg.OnCompactionWarning
			}

			compressResult := o.compressDriver.Compress(current, o.cfg.Summarizer, params)
			current = compressResult.Messages
			actions = o.record(actions, state, tokenCount, compressResult.Action)
			if o.cfg.Metrics != nil {
				o.cfg.Metrics.IncCompaction()
			}

			tokenCount, err = o.countTokens(current)
			if err != nil {
				return Result{}, err
			}
			state = ctxbudget.CalculateState(tokenCount, budget, o.cfg.Thresholds)
		}
	}

	if state == ctxbudget.StateOverflow {
		current, tokenCount, actions = o.recover(current, tokenCount, budget, actions)
		state = ctxbudget.CalculateState(tokenCount, budget, o.cfg.Thresholds)
	}

	o.reportStoreSizes()
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.SetContextState(string(state))
	}

	return o.result(state, tokenCount, budget, actions, checkpoint, current), nil
}

// record appends action to the action log, logs it through ctxlog, and
// increments the pipeline-run counter.
func (o *Orchestrator) record(actions []string, state ctxbudget.ContextState, tokenCount int, action string) []string {
	ctxlog.ActionLogged(string(state), tokenCount, action)
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.IncActionPipelineRun(action)
	}
	return append(actions, action)
}

// reportStoreSizes publishes the checkpoint and snapshot store sizes, when
// both a recorder and the respective store are configured.
func (o *Orchestrator) reportStoreSizes() {
	if o.cfg.Metrics == nil {
		return
	}
	if o.cfg.Checkpoints != nil {
		o.cfg.Metrics.SetCheckpointStoreSize(o.cfg.Checkpoints.Size())
	}
	if o.cfg.Snapshots != nil {
		o.cfg.Metrics.SetSnapshotStoreSize(o.cfg.Snapshots.Size())
	}
}

// recover selects and executes the overflow recovery strategy: rollback to
// a recent checkpoint, else emergency_clear if usage exceeds 1.0, else
// aggressive_truncate. A rollback failure (checkpoint not found) falls
// through to aggressive_truncate.
func (o *Orchestrator) recover(current []types.Message, tokenCount int, budget ctxbudget.Budget, actions []string) ([]types.Message, int, []string) {
	if o.cfg.Checkpoints != nil {
		if cp, ok := o.cfg.Checkpoints.NewestWithin(RecentWindowForRollback); ok {
			rollback, err := o.cfg.Checkpoints.Rollback(cp.ID, current)
			if err == nil {
				actions = o.record(actions, ctxbudget.StateOverflow, tokenCount, "recovery:rollback")
				newCount, countErr := o.countTokens(rollback.Messages)
				if countErr == nil {
					return rollback.Messages, newCount, actions
				}
			}
			if !errors.Is(err, ctxerr.ErrCheckpointNotFound) {
				actions = o.record(actions, ctxbudget.StateOverflow, tokenCount, fmt.Sprintf("recovery:rollback-failed - %s", err))
			}
		}
	}

	usage := ctxbudget.BudgetUsage(tokenCount, budget)
	if usage > 1.0 {
		cleared := emergencyClear(current)
		newCount, err := o.countTokens(cleared)
		if err == nil {
			actions = o.record(actions, ctxbudget.StateOverflow, tokenCount, "recovery:emergency_clear")
			return cleared, newCount, actions
		}
	}

	target := int(float64(budget.HistoryBudget) * AggressiveTruncateRatio)
	truncResult := ctxtruncate.Truncate(current, ctxtruncate.Params{
		TargetTokens:      target,
		RecentCount:       o.cfg.RecentCount,
		PreserveToolPairs: false,
		Tokenizer:         o.cfg.Tokenizer,
		Snapshot:          o.cfg.Snapshots,
		TruncationReason:  "overflow-recovery",
	})
	actions = o.record(actions, ctxbudget.StateOverflow, tokenCount, fmt.Sprintf("recovery:aggressive_truncate removed %d messages", truncResult.RemovedCount))
	return truncResult.Messages, truncResult.TokenCount, actions
}

// emergencyClear keeps every system message plus the newest
// EmergencyKeepCount non-system messages.
func emergencyClear(messages []types.Message) []types.Message {
	var system []types.Message
	var nonSystem []types.Message
	for _, m := range messages {
		if m.Role == types.RoleSystem {
			system = append(system, m)
			continue
		}
		nonSystem = append(nonSystem, m)
	}

	keepFrom := len(nonSystem) - EmergencyKeepCount
	if keepFrom < 0 {
		keepFrom = 0
	}

	out := make([]types.Message, 0, len(system)+len(nonSystem)-keepFrom)
	out = append(out, system...)
	out = append(out, nonSystem[keepFrom:]...)
	return out
}

func (o *Orchestrator) countTokens(messages []types.Message) (int, error) {
	if o.cfg.Tokenizer == nil {
		return 0, ctxerr.ErrTokenizerFailed
	}
	return tokenizer.CountMessagesTokens(o.cfg.Tokenizer, messages), nil
}

func (o *Orchestrator) result(state ctxbudget.ContextState, tokenCount int, budget ctxbudget.Budget, actions []string, checkpoint *ctxcheckpoint.Checkpoint, messages []types.Message) Result {
	return Result{
		State:      state,
		TokenCount: tokenCount,
		BudgetUsed: ctxbudget.BudgetUsage(tokenCount, budget),
		Actions:    actions,
		Checkpoint: checkpoint,
		Messages:   messages,
	}
}
