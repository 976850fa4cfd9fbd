package ctxlog

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
)

// ContextHandler is a slog.Handler that extracts logging fields from context
// and adds them to every log record before delegating to the inner handler.
type ContextHandler struct {
	inner        slog.Handler
	commonFields []slog.Attr
}

// ModuleHandler extends ContextHandler with per-package log level filtering,
// determined from the call stack.
type ModuleHandler struct {
	ContextHandler
	moduleConfig *ModuleConfig
}

// NewContextHandler creates a ContextHandler wrapping inner. commonFields are
// added to every log record.
func NewContextHandler(inner slog.Handler, commonFields ...slog.Attr) *ContextHandler {
	return &ContextHandler{inner: inner, commonFields: commonFields}
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	newRecord := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	for _, attr := range h.commonFields {
		newRecord.AddAttrs(attr)
	}
	h.addContextFields(ctx, &newRecord)
	r.Attrs(func(a slog.Attr) bool {
		newRecord.AddAttrs(a)
		return true
	})
	return h.inner.Handle(ctx, newRecord)
}

func (h *ContextHandler) addContextFields(ctx context.Context, r *slog.Record) {
	for _, key := range allContextKeys {
		if v := ctx.Value(key); v != nil {
			if s, ok := v.(string); ok && s != "" {
				r.AddAttrs(slog.String(string(key), s))
			}
		}
	}
}

// WithAttrs returns a new handler with attrs added to the inner handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), commonFields: h.commonFields}
}

// WithGroup returns a new handler with name added to the inner handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name), commonFields: h.commonFields}
}

// Unwrap returns the inner handler.
func (h *ContextHandler) Unwrap() slog.Handler { return h.inner }

var _ slog.Handler = (*ContextHandler)(nil)

// NewModuleHandler creates a ModuleHandler with per-package log level filtering.
func NewModuleHandler(inner slog.Handler, moduleConfig *ModuleConfig, commonFields ...slog.Attr) *ModuleHandler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{inner: inner, commonFields: commonFields},
		moduleConfig:   moduleConfig,
	}
}

// Enabled uses the module configuration to determine the level for the calling package.
func (h *ModuleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	module := getCallerModule()
	return level >= h.moduleConfig.LevelFor(module)
}

//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ModuleHandler) Handle(ctx context.Context, r slog.Record) error {
	module := getCallerModuleFromPC(r.PC)
	if r.Level < h.moduleConfig.LevelFor(module) {
		return nil
	}

	newRecord := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	for _, attr := range h.commonFields {
		newRecord.AddAttrs(attr)
	}
	if module != "" {
		newRecord.AddAttrs(slog.String("logger", module))
	}
	h.addContextFields(ctx, &newRecord)
	r.Attrs(func(a slog.Attr) bool {
		newRecord.AddAttrs(a)
		return true
	})
	return h.inner.Handle(ctx, newRecord)
}

// WithAttrs returns a new handler with attrs added.
func (h *ModuleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{inner: h.inner.WithAttrs(attrs), commonFields: h.commonFields},
		moduleConfig:   h.moduleConfig,
	}
}

// WithGroup returns a new handler with name added.
func (h *ModuleHandler) WithGroup(name string) slog.Handler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{inner: h.inner.WithGroup(name), commonFields: h.commonFields},
		moduleConfig:   h.moduleConfig,
	}
}

// getCallerModule walks the stack to find the first frame outside this package.
func getCallerModule() string {
	const maxDepth = 10
	var pcs [maxDepth]uintptr
	//nolint:mnd // 3 skips getCallerModule, Enabled, and the slog internals frame
	n := runtime.Callers(3, pcs[:])
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		module := extractModuleFromFunction(frame.Function)
		if module != "" && !strings.HasPrefix(module, "ctxlog") {
			return module
		}
		if !more {
			break
		}
	}
	return ""
}

func getCallerModuleFromPC(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	return extractModuleFromFunction(frame.Function)
}

// extractModuleFromFunction turns a fully qualified function name like
// "github.com/contextkeep/contextkeep/ctxcompress.(*Driver).Compress" into
// "ctxcompress".
func extractModuleFromFunction(fn string) string {
	if fn == "" {
		return ""
	}

	const moduleRoot = "github.com/contextkeep/contextkeep/"
	idx := strings.Index(fn, moduleRoot)
	if idx == -1 {
		return ""
	}

	path := fn[idx+len(moduleRoot):]
	if parenIdx := strings.Index(path, "("); parenIdx != -1 {
		path = path[:parenIdx]
	}
	if dotIdx := strings.LastIndex(path, "."); dotIdx != -1 {
		path = path[:dotIdx]
	}
	return strings.ReplaceAll(path, "/", ".")
}

var _ slog.Handler = (*ModuleHandler)(nil)
