package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/rs/zerolog"
)

// ZerologHandler is a slog.Handler that writes through a zerolog.Logger.
type ZerologHandler struct {
	logger zerolog.Logger
	attrs  []scopedAttr
	groups []string
}

// scopedAttr remembers the group path that was open when the attr was added.
type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

// NewZerologHandler wraps zl. Level filtering follows zl's level.
func NewZerologHandler(zl zerolog.Logger) *ZerologHandler {
	return &ZerologHandler{logger: zl}
}

// Enabled implements slog.Handler.
func (h *ZerologHandler) Enabled(_ context.Context, level slog.Level) bool {
	return toZerolog(level) >= h.logger.GetLevel()
}

// Handle implements slog.Handler.
func (h *ZerologHandler) Handle(_ context.Context, record slog.Record) error {
	evt := h.logger.WithLevel(toZerolog(record.Level))
	if evt == nil {
		return nil
	}

	for _, sa := range h.attrs {
		addAttr(evt, sa.groups, sa.attr)
	}
	record.Attrs(func(a slog.Attr) bool {
		addAttr(evt, h.groups, a)
		return true
	})

	evt.Msg(record.Message)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *ZerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]scopedAttr(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, scopedAttr{groups: h.groups, attr: a})
	}
	return &next
}

// WithGroup implements slog.Handler. Grouped keys are dot-joined.
func (h *ZerologHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

func addAttr(evt *zerolog.Event, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	for i := len(groups) - 1; i >= 0; i-- {
		key = groups[i] + "." + key
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		sub := groups
		if a.Key != "" {
			sub = append(append([]string(nil), groups...), a.Key)
		}
		for _, ga := range a.Value.Group() {
			addAttr(evt, sub, ga)
		}
	case slog.KindString:
		evt.Str(key, a.Value.String())
	case slog.KindInt64:
		evt.Int64(key, a.Value.Int64())
	case slog.KindUint64:
		evt.Uint64(key, a.Value.Uint64())
	case slog.KindFloat64:
		evt.Float64(key, a.Value.Float64())
	case slog.KindBool:
		evt.Bool(key, a.Value.Bool())
	case slog.KindDuration:
		evt.Dur(key, a.Value.Duration())
	case slog.KindTime:
		evt.Time(key, a.Value.Time().UTC().Truncate(time.Millisecond))
	default:
		if err, ok := a.Value.Any().(error); ok {
			evt.AnErr(key, err)
			return
		}
		evt.Interface(key, a.Value.Any())
	}
}
