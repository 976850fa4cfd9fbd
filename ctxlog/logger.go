// Package ctxlog provides structured logging for the context-management
// engine: a log/slog wrapper with automatic redaction of API-key-shaped
// strings before any externally-supplied text (summarizer errors, tool
// output) reaches a log line.
package ctxlog

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// DefaultLogger is the global structured logger instance. It is safe for
// concurrent use and initialized from LOG_LEVEL at package init.
var DefaultLogger *slog.Logger

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		switch strings.ToLower(envLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	handler := NewContextHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	DefaultLogger = slog.New(handler)
}

// SetLevel changes the logging level for all subsequent log operations.
func SetLevel(level slog.Level) {
	handler := NewContextHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	DefaultLogger = slog.New(handler)
}

// SetVerbose enables debug-level logging when verbose is true, otherwise info.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
		return
	}
	SetLevel(slog.LevelInfo)
}

// Info logs an informational message with structured key-value attributes.
func Info(msg string, args ...any) { DefaultLogger.Info(msg, args...) }

// InfoContext logs an informational message enriched with logging-context fields.
func InfoContext(ctx context.Context, msg string, args ...any) { DefaultLogger.InfoContext(ctx, msg, args...) }

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) { DefaultLogger.Debug(msg, args...) }

// DebugContext logs a debug message enriched with logging-context fields.
func DebugContext(ctx context.Context, msg string, args ...any) { DefaultLogger.DebugContext(ctx, msg, args...) }

// Warn logs a warning message with structured attributes.
func Warn(msg string, args ...any) { DefaultLogger.Warn(msg, args...) }

// WarnContext logs a warning message enriched with logging-context fields.
func WarnContext(ctx context.Context, msg string, args ...any) { DefaultLogger.WarnContext(ctx, msg, args...) }

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) { DefaultLogger.Error(msg, args...) }

// ErrorContext logs an error message enriched with logging-context fields.
func ErrorContext(ctx context.Context, msg string, args ...any) { DefaultLogger.ErrorContext(ctx, msg, args...) }

// ActionLogged logs a single pipeline action (e.g. "prune:trimmed 3 results")
// along with the triggering state and token count.
func ActionLogged(state string, tokenCount int, action string) {
	Info("pipeline action", "state", state, "tokens", tokenCount, "action", RedactSensitiveData(action))
}

// FallbackAdvanced logs a fallback-chain model transition.
func FallbackAdvanced(fromModel, toModel string) {
	Info("fallback chain advanced", "from_model", fromModel, "to_model", toModel)
}

// AttemptFailed logs a single summarizer attempt failure.
func AttemptFailed(model string, attempt int, err error) {
	Warn("summarizer attempt failed", "model", model, "attempt", attempt, "error", RedactSensitiveData(err.Error()))
}

var apiKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),
	regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_-]+`),
}

// RedactSensitiveData replaces API-key-shaped substrings of input with a
// redacted form that preserves a short debugging prefix.
func RedactSensitiveData(input string) string {
	result := input
	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer [REDACTED]"
			}
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return result
}
