// Package logging provides the process-wide structured logger. It follows
// the same switchable-handler idiom used elsewhere in this codebase's
// lineage: package-level loggers obtained via L() before Init() runs still
// observe the real handler once configuration loads, because they all read
// through one atomically-swapped indirection.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Key constants for structured log fields shared across components.
const (
	KeyComponent  = "component"
	KeyDurationMs = "durationMs"
	KeyError      = "error"
	KeyMode       = "mode"
	KeySegment    = "segment"
	KeyRequestID  = "requestId"
)

type contextKey struct{}

// switchableHandler lets loggers created at init() time dynamically pick up
// the configured handler once Init runs.
type switchableHandler struct {
	state  *switchableState
	attrs  []slog.Attr
	groups []string
}

type switchableState struct {
	current func() slog.Handler
}

func newSwitchableHandler(initial slog.Handler) *switchableHandler {
	var cur slog.Handler = initial
	state := &switchableState{current: func() slog.Handler { return cur }}
	h := &switchableHandler{state: state}
	h.state.set(initial)
	return h
}

func (s *switchableState) set(h slog.Handler) {
	s.current = func() slog.Handler { return h }
}

func (h *switchableHandler) materialize() slog.Handler {
	handler := h.state.current()
	for _, group := range h.groups {
		handler = handler.WithGroup(group)
	}
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	return handler
}

func (h *switchableHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.materialize().Enabled(ctx, level)
}

func (h *switchableHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.materialize().Handle(ctx, record)
}

func (h *switchableHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	groups := append([]string{}, h.groups...)
	return &switchableHandler{state: h.state, attrs: merged, groups: groups}
}

func (h *switchableHandler) WithGroup(name string) slog.Handler {
	attrs := append([]slog.Attr{}, h.attrs...)
	groups := append(append([]string{}, h.groups...), name)
	return &switchableHandler{state: h.state, attrs: attrs, groups: groups}
}

var (
	rootHandler   = newSwitchableHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	defaultLogger = slog.New(rootHandler)
)

func init() {
	slog.SetDefault(defaultLogger)
}

// Init installs the real handler once configuration has loaded. format is
// "json" or "text" (default "text"); level is "debug"/"info"/"warn"/"error".
// output defaults to os.Stdout when nil (the caller typically passes a
// RotatingWriter, see rotation.go).
func Init(format, level string, output io.Writer) {
	if output == nil {
		output = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	rootHandler.state.set(handler)
	defaultLogger = slog.New(rootHandler)
	slog.SetDefault(defaultLogger)
}

// L returns a logger tagged with the given component name, e.g. "capture",
// "encoder", "catalog".
func L(component string) *slog.Logger {
	return defaultLogger.With(slog.String(KeyComponent, component))
}

// WithRequest returns a child logger carrying a request/clip correlation id.
func WithRequest(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With(slog.String(KeyRequestID, requestID))
}

// NewContext returns a context carrying logger for downstream retrieval.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts the logger from context, falling back to the
// package default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return l
	}
	return defaultLogger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
