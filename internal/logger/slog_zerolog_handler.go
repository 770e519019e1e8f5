package logger

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"
)

// zlHandler adapts a zerolog logger to the slog.Handler contract so
// packages that take *slog.Logger write through the same sink. Groups
// flatten to dot-prefixed keys.
type zlHandler struct {
	zl     *zerolog.Logger
	attr   []slog.Attr
	groups []string
}

func NewSlog(zl *zerolog.Logger) *slog.Logger {
	return slog.New(&zlHandler{zl: zl})
}

func zlLevel(l slog.Level) zerolog.Level {
	switch {
	case l < slog.LevelInfo:
		return zerolog.DebugLevel
	case l < slog.LevelWarn:
		return zerolog.InfoLevel
	case l < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (h *zlHandler) Enabled(_ context.Context, l slog.Level) bool {
	lvl := zlLevel(l)
	return lvl >= h.zl.GetLevel() && lvl >= zerolog.GlobalLevel()
}

func (h *zlHandler) Handle(ctx context.Context, r slog.Record) error {
	// context fields (request_id, component, query_type) ride along
	base := FromContext(ctx, h.zl)

	ev := base.WithLevel(zlLevel(r.Level))
	for _, a := range h.attr {
		ev = h.addAttr(ev, a, nil)
	}
	r.Attrs(func(a slog.Attr) bool {
		ev = h.addAttr(ev, a, h.groups)
		return true
	})

	ev.Msg(r.Message)
	return nil
}

func (h *zlHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attr = append(cp.attr[:len(cp.attr):len(cp.attr)], make([]slog.Attr, 0, len(attrs))...)
	for _, a := range attrs {
		a.Key = prefixed(h.groups, a.Key)
		cp.attr = append(cp.attr, a)
	}
	return &cp
}

func (h *zlHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	cp.groups = append(cp.groups[:len(cp.groups):len(cp.groups)], name)
	return &cp
}

func prefixed(groups []string, key string) string {
	if len(groups) == 0 {
		return key
	}
	return strings.Join(groups, ".") + "." + key
}

func (h *zlHandler) addAttr(ev *zerolog.Event, a slog.Attr, groups []string) *zerolog.Event {
	a.Value = a.Value.Resolve()
	key := prefixed(groups, a.Key)
	switch a.Value.Kind() {
	case slog.KindString:
		return ev.Str(key, a.Value.String())
	case slog.KindInt64:
		return ev.Int64(key, a.Value.Int64())
	case slog.KindUint64:
		return ev.Uint64(key, a.Value.Uint64())
	case slog.KindFloat64:
		return ev.Float64(key, a.Value.Float64())
	case slog.KindBool:
		return ev.Bool(key, a.Value.Bool())
	case slog.KindDuration:
		return ev.Dur(key, a.Value.Duration())
	case slog.KindTime:
		return ev.Time(key, a.Value.Time())
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			ev = h.addAttr(ev, ga, append(groups, a.Key))
		}
		return ev
	default:
		return ev.Interface(key, a.Value.Any())
	}
}
