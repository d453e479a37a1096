package logging

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// LogCallback is called when a new log entry is written.
// Used to publish log events without creating import cycles.
type LogCallback func(entry LogEntry)

// handlerState is the level gate and the WithAttrs/WithGroup accumulation
// shared by the journal and history handlers.
type handlerState struct {
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func (s handlerState) enabled(level slog.Level) bool {
	return level >= s.level.Level()
}

// withAttrs nests attrs inside the open groups so later WithGroup calls do
// not apply to them.
func (s handlerState) withAttrs(attrs []slog.Attr) handlerState {
	if len(s.groups) > 0 {
		v := slog.GroupValue(attrs...)
		for i := len(s.groups) - 1; i >= 0; i-- {
			v = slog.GroupValue(slog.Attr{Key: s.groups[i], Value: v})
		}
		attrs = v.Group()
	}
	s.attrs = append(slices.Clip(s.attrs), attrs...)
	return s
}

func (s handlerState) withGroup(name string) handlerState {
	if name != "" {
		s.groups = append(slices.Clip(s.groups), name)
	}
	return s
}

// each visits handler attrs, then record attrs under the open groups, with
// groups already spliced into the keys as prefix.
func (s handlerState) each(r slog.Record, fn func(prefix []string, a slog.Attr)) {
	for _, a := range s.attrs {
		fn(nil, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		fn(s.groups, a)
		return true
	})
}

// BufferHandler is a slog.Handler that writes to the process-wide ring
// buffer and log callback. Both are looked up per record, so handlers
// created before Initialize start recording once it runs.
type BufferHandler struct {
	state handlerState
}

// NewBufferHandler creates a buffer handler gated by level.
func NewBufferHandler(level slog.Leveler) *BufferHandler {
	return &BufferHandler{state: handlerState{level: level}}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.state.enabled(level)
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	buffer, callback := sinks()
	if buffer == nil && callback == nil {
		return nil
	}

	entry := LogEntry{
		Timestamp:  r.Time,
		Level:      LevelName(r.Level),
		Module:     "app",
		Message:    r.Message,
		Attributes: make(map[string]any),
	}
	h.state.each(r, func(prefix []string, a slog.Attr) {
		if len(prefix) == 0 && a.Key == "module" {
			entry.Module = a.Value.String()
			return
		}
		flattenAttr(entry.Attributes, prefix, a)
	})

	if buffer != nil {
		buffer.Write(entry)
	}
	if callback != nil {
		callback(entry)
	}
	return nil
}

// flattenAttr stores a under its dotted group path. Errors become their
// message and times RFC 3339 strings so entries encode cleanly as JSON.
func flattenAttr(dst map[string]any, prefix []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := strings.Join(append(slices.Clip(prefix), a.Key), ".")

	switch v := a.Value; v.Kind() {
	case slog.KindGroup:
		for _, child := range v.Group() {
			flattenAttr(dst, append(slices.Clip(prefix), a.Key), child)
		}
	case slog.KindTime:
		dst[key] = v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		dst[key] = v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			dst[key] = err.Error()
		} else {
			dst[key] = v.Any()
		}
	default:
		dst[key] = v.Any()
	}
}

// WithAttrs implements slog.Handler.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &BufferHandler{state: h.state.withAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	return &BufferHandler{state: h.state.withGroup(name)}
}
