// Package logutil - slog Logger mit TRACE-Level
//
// Enthaelt:
// - LevelTrace: zusaetzliches Level unterhalb von DEBUG
// - NewLogger: Text-Handler mit kurzem Source-Pfad
// - Trace/TraceContext: Logging auf TRACE-Level mit korrekter Aufrufstelle
package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"
)

const LevelTrace slog.Level = -8

// NewLogger erstellt einen Text-Logger fuer w mit dem gegebenen Level
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				if attr.Value.Any().(slog.Level) == LevelTrace {
					attr.Value = slog.StringValue("TRACE")
				}
			case slog.SourceKey:
				source := attr.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return attr
		},
	}))
}

// Trace loggt msg auf TRACE-Level ueber den Default-Logger
func Trace(msg string, args ...any) {
	TraceContext(context.TODO(), msg, args...)
}

// TraceContext loggt msg auf TRACE-Level mit Kontext
func TraceContext(ctx context.Context, msg string, args ...any) {
	if logger := slog.Default(); logger.Enabled(ctx, LevelTrace) {
		var pcs [1]uintptr
		runtime.Callers(3, pcs[:])
		r := slog.NewRecord(time.Now(), LevelTrace, msg, pcs[0])
		r.Add(args...)
		_ = logger.Handler().Handle(ctx, r)
	}
}
