// Package logging builds the process logger: a terminal handler plus an
// optional JSON file, fanned out through one slog.Logger whose level can be
// changed at runtime.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
	slogmulti "github.com/samber/slog-multi"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is text (charm terminal output) or json.
	Format string
	// File, when set, receives every record as JSON in addition to the terminal.
	File string
	// Writer is the terminal destination. Nil means stderr.
	Writer io.Writer
}

// Logger is a slog.Logger with an adjustable level and an owned log file.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar
	file  *os.File
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// New builds a logger from opts.
func New(opts Options) (*Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	level := new(slog.LevelVar)
	level.Set(lvl)

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	var handlers []slog.Handler
	switch opts.Format {
	case "", "text":
		terminal := charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			Level:           charmlog.DebugLevel,
		})
		handlers = append(handlers, &leveled{Handler: terminal, level: level})
	case "json":
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	l := &Logger{Level: level}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	l.Logger = slog.New(slogmulti.Fanout(handlers...))
	return l, nil
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// leveled gates a handler on a shared LevelVar.
type leveled struct {
	slog.Handler
	level slog.Leveler
}

func (h *leveled) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level() && h.Handler.Enabled(ctx, l)
}

func (h *leveled) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.level.Level() {
		return nil
	}
	return h.Handler.Handle(ctx, r)
}

func (h *leveled) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &leveled{Handler: h.Handler.WithAttrs(attrs), level: h.level}
}

func (h *leveled) WithGroup(name string) slog.Handler {
	return &leveled{Handler: h.Handler.WithGroup(name), level: h.level}
}
