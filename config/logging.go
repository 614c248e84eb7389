package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ComponentKey is the log attribute selecting per-component levels.
const ComponentKey = "component"

// LogLevels holds a default level and per-component overrides.
type LogLevels struct {
	Default    slog.Level
	Components map[string]slog.Level
}

// For returns the level of component.
func (l LogLevels) For(component string) slog.Level {
	if level, ok := l.Components[component]; ok {
		return level
	}
	return l.Default
}

// Min returns the most verbose configured level.
func (l LogLevels) Min() slog.Level {
	lowest := l.Default
	for _, level := range l.Components {
		lowest = min(lowest, level)
	}
	return lowest
}

// ParseLogLevels parses comma separated LEVEL and component=LEVEL entries,
// e.g. "info,backfill=debug". Levels are the slog names, case insensitive.
func ParseLogLevels(entries ...string) (LogLevels, error) {
	levels := LogLevels{Default: slog.LevelInfo, Components: map[string]slog.Level{}}
	for _, entry := range entries {
		for _, item := range strings.Split(entry, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			component, name, hasComponent := strings.Cut(item, "=")
			if !hasComponent {
				name = component
			}
			var level slog.Level
			if err := level.UnmarshalText([]byte(name)); err != nil {
				return LogLevels{}, fmt.Errorf("invalid log level %q: %w", item, err)
			}
			if hasComponent {
				levels.Components[strings.TrimSpace(component)] = level
			} else {
				levels.Default = level
			}
		}
	}
	return levels, nil
}

// NewLogger returns a text logger writing to w with per-component levels.
func NewLogger(w io.Writer, levels LogLevels) *slog.Logger {
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{Level: levels.Min()})
	return slog.New(NewHandler(inner, levels))
}

// NewHandler filters records of inner by the level of their component.
func NewHandler(inner slog.Handler, levels LogLevels) slog.Handler {
	return &componentHandler{inner: inner, levels: levels}
}

type componentHandler struct {
	inner     slog.Handler
	levels    LogLevels
	component string
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.component == "" && len(h.levels.Components) > 0 {
		// The record may still carry a component, decide in Handle.
		return level >= h.levels.Min() && h.inner.Enabled(ctx, level)
	}
	return level >= h.levels.For(h.component) && h.inner.Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	component := h.component
	if component == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == ComponentKey {
				component = a.Value.String()
				return false
			}
			return true
		})
	}
	if r.Level < h.levels.For(component) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	tmp := *h
	tmp.inner = h.inner.WithAttrs(attrs)
	for _, a := range attrs {
		if a.Key == ComponentKey {
			tmp.component = a.Value.String()
		}
	}
	return &tmp
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	tmp := *h
	tmp.inner = h.inner.WithGroup(name)
	return &tmp
}
