// Package ctxfallback implements the ordered multi-model summarizer chain:
// each model is tried in turn with per-attempt retry and timeout, falling
// through to the next model on exhaustion.
package ctxfallback

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/contextkeep/contextkeep/ctxerr"
	"github.com/contextkeep/contextkeep/ctxlog"
	"github.com/contextkeep/contextkeep/ctxmetrics"
	"github.com/contextkeep/contextkeep/types"
)

// DefaultMaxRetries, DefaultTimeoutMs are applied to a ModelConfig whose
// fields are left at their zero value.
const (
	DefaultMaxRetries = 1
	DefaultTimeoutMs  = 30_000
)

// ModelConfig describes one link in the fallback chain.
type ModelConfig struct {
	Model        string
	MaxRetries   int
	RetryDelayMs int
	TimeoutMs    int
}

func (c ModelConfig) normalized() ModelConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = DefaultTimeoutMs
	}
	return c
}

// SummarizerClient is the opaque capability a client factory produces for a
// given model: "given these messages and a directive, return a summary
// string". The chain never speaks a provider's wire format directly.
type SummarizerClient interface {
	Summarize(ctx context.Context, messages []types.Message, directive string) (string, error)
}

// ClientFactory maps a model id to a SummarizerClient. It is invoked once
// per (model, request) as needed; the chain never caches clients across
// requests.
type ClientFactory func(modelID string) (SummarizerClient, error)

// Callbacks are invoked by the chain as it progresses. All are optional.
type Callbacks struct {
	OnFallback      func(fromModel, toModel string)
	OnAttemptFailed func(model string, attempt int, err error)
}

// Chain is an ordered, constructed-once fallback chain of models.
type Chain struct {
	models    []ModelConfig
	factory   ClientFactory
	callbacks Callbacks
}

// NewChain constructs a Chain. It rejects an empty model list.
func NewChain(models []ModelConfig, factory ClientFactory, callbacks Callbacks) (*Chain, error) {
	if len(models) == 0 {
		return nil, ctxerr.NewConfigurationError(ctxerr.ErrEmptyModelChain)
	}

	normalized := make([]ModelConfig, len(models))
	for i, m := range models {
		normalized[i] = m.normalized()
	}

	return &Chain{models: normalized, factory: factory, callbacks: callbacks}, nil
}

// Result is the successful outcome of Summarize.
type Result struct {
	Summary        string
	Model          string
	Attempts       int
	LatencyMs      int64
	AttemptHistory []ctxerr.AttemptRecord
}

// Summarize races each model's client against its configured timeout,
// retrying within a model per its MaxRetries with progressive linear
// backoff, and falling through to the next model when a model's retries are
// exhausted. If every model exhausts, it returns an *ctxerr.AllModelsFailedError.
func (c *Chain) Summarize(ctx context.Context, messages []types.Message, directive string) (Result, error) {
	start := time.Now()

	var history []ctxerr.AttemptRecord
	var attemptedModels []string
	totalAttempts := 0

	for modelIndex, cfg := range c.models {
		attemptedModels = append(attemptedModels, cfg.Model)
		backOff := newLinearBackOff(cfg.RetryDelayMs)

		client, clientErr := c.factory(cfg.Model)

		for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
			totalAttempts++
			attemptStart := time.Now()

			var summary string
			var timedOut bool
			var attemptErr error

			if clientErr != nil {
				attemptErr = clientErr
			} else {
				summary, timedOut, attemptErr = raceAttempt(ctx, client, messages, directive, time.Duration(cfg.TimeoutMs)*time.Millisecond)
			}

			latencyMs := time.Since(attemptStart).Milliseconds()

			if attemptErr == nil {
				return Result{
					Summary:        summary,
					Model:          cfg.Model,
					Attempts:       totalAttempts,
					LatencyMs:      time.Since(start).Milliseconds(),
					AttemptHistory: history,
				}, nil
			}

			errMsg := attemptErr.Error()
			if timedOut {
				errMsg = "timeout"
			}
			history = append(history, ctxerr.AttemptRecord{
				Model:     cfg.Model,
				Attempt:   attempt,
				Success:   false,
				TimedOut:  timedOut,
				LatencyMs: latencyMs,
				Error:     errMsg,
			})

			if c.callbacks.OnAttemptFailed != nil {
				c.callbacks.OnAttemptFailed(cfg.Model, attempt, attemptErr)
			}

			if attempt < cfg.MaxRetries {
				if delay := backOff.NextBackOff(); delay > 0 {
					time.Sleep(delay)
				}
			}
		}

		if modelIndex+1 < len(c.models) {
			next := c.models[modelIndex+1].Model
			if c.callbacks.OnFallback != nil {
				c.callbacks.OnFallback(cfg.Model, next)
			}
		}
	}

	return Result{}, &ctxerr.AllModelsFailedError{
		AttemptedModels: attemptedModels,
		TotalAttempts:   totalAttempts,
		TotalLatencyMs:  time.Since(start).Milliseconds(),
		AttemptHistory:  history,
	}
}

// raceAttempt runs a single summarizer call against a timeout. On timeout,
// the in-flight call is abandoned — its result, if it ever arrives, is
// discarded by the orphaned goroutine.
func raceAttempt(ctx context.Context, client SummarizerClient, messages []types.Message, directive string, timeout time.Duration) (summary string, timedOut bool, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		summary string
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		s, e := client.Summarize(attemptCtx, messages, directive)
		done <- outcome{summary: s, err: e}
	}()

	select {
	case out := <-done:
		return out.summary, false, out.err
	case <-attemptCtx.Done():
		return "", true, attemptCtx.Err()
	}
}

// ObservableCallbacks builds Callbacks that log through ctxlog and, when
// recorder is non-nil, record fallback attempt outcomes on it. Pass the
// result as NewChain's callbacks argument to get logging and metrics for
// free.
func ObservableCallbacks(recorder *ctxmetrics.Recorder) Callbacks {
	return Callbacks{
		OnFallback: func(fromModel, toModel string) {
			ctxlog.FallbackAdvanced(fromModel, toModel)
			if recorder != nil {
				recorder.IncFallbackAttempt(fromModel, "exhausted")
			}
		},
		OnAttemptFailed: func(model string, attempt int, err error) {
			ctxlog.AttemptFailed(model, attempt, err)
			if recorder != nil {
				recorder.IncFallbackAttempt(model, "failed")
			}
		},
	}
}

// linearBackOff implements backoff.BackOff with the chain's progressive
// linear delay: retryDelayMs * attemptNumber, where attemptNumber increases
// by one on every call.
type linearBackOff struct {
	delay time.Duration
	n     int
}

func newLinearBackOff(delayMs int) *linearBackOff {
	return &linearBackOff{delay: time.Duration(delayMs) * time.Millisecond}
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.delay * time.Duration(b.n)
}

func (b *linearBackOff) Reset() { b.n = 0 }

var _ backoff.BackOff = (*linearBackOff)(nil)
