package ctxlog

import "context"

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for fields automatically extracted into every log record.
const (
	// ContextKeySessionID identifies the caller's session, shared with
	// ctxinherit's on-disk session files.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyStage identifies the active pipeline stage (prune, truncate,
	// compress, recover).
	ContextKeyStage contextKey = "stage"

	// ContextKeyModel identifies the fallback-chain model currently in use.
	ContextKeyModel contextKey = "model"

	// ContextKeyCorrelationID threads a caller-supplied id across a single
	// manage() invocation's log lines.
	ContextKeyCorrelationID contextKey = "correlation_id"
)

var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyStage,
	ContextKeyModel,
	ContextKeyCorrelationID,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithStage returns a new context with the pipeline stage set.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ContextKeyStage, stage)
}

// WithModel returns a new context with the active model name set.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ContextKeyModel, model)
}

// WithCorrelationID returns a new context with the correlation ID set.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, correlationID)
}

// Fields holds every standard logging context field, for bulk extraction.
type Fields struct {
	SessionID     string
	Stage         string
	Model         string
	CorrelationID string
}

// ExtractFields reads every known context key into a Fields value.
func ExtractFields(ctx context.Context) Fields {
	var f Fields
	if v, ok := ctx.Value(ContextKeySessionID).(string); ok {
		f.SessionID = v
	}
	if v, ok := ctx.Value(ContextKeyStage).(string); ok {
		f.Stage = v
	}
	if v, ok := ctx.Value(ContextKeyModel).(string); ok {
		f.Model = v
	}
	if v, ok := ctx.Value(ContextKeyCorrelationID).(string); ok {
		f.CorrelationID = v
	}
	return f
}
