// Package logging provides the diagnostic stream described in §7 of the
// design: user-visible lines tagged with a severity of error, warn, info
// or debug. The decoder core never writes to stdout directly — it always
// goes through a Logger so the host application (or a test) can capture,
// filter or silence it.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"

	"swotrace/internal/common"
)

// Logger is the diagnostic sink consumed by every decoder component.
type Logger interface {
	Log(sev common.Severity, component, msg string)
	Logf(sev common.Severity, component, format string, args ...any)
	Error(err *common.Error)
}

// SlogLogger adapts the diagnostic stream onto log/slog, so the same
// Logger can be routed to plain text, JSON, or (by default) the coloured
// tint handler used for interactive sessions.
type SlogLogger struct {
	logger   *slog.Logger
	minLevel common.Severity
}

// NewSlogLogger builds a Logger backed by a tint-formatted handler writing
// to w (os.Stderr for interactive use). Messages below minLevel are
// dropped before they reach slog.
func NewSlogLogger(w *os.File, minLevel common.Severity) *SlogLogger {
	handler := tint.NewHandler(w, &tint.Options{
		Level:      severityToSlog(minLevel),
		TimeFormat: "15:04:05.000",
	})
	return &SlogLogger{logger: slog.New(handler), minLevel: minLevel}
}

// NewLogger wraps an arbitrary slog.Logger, e.g. one configured by the
// host application for JSON output in production.
func NewLogger(l *slog.Logger, minLevel common.Severity) *SlogLogger {
	return &SlogLogger{logger: l, minLevel: minLevel}
}

func severityToSlog(sev common.Severity) slog.Level {
	switch sev {
	case common.SeverityDebug:
		return slog.LevelDebug
	case common.SeverityInfo:
		return slog.LevelInfo
	case common.SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func (l *SlogLogger) Log(sev common.Severity, component, msg string) {
	if sev < l.minLevel {
		return
	}
	l.logger.LogAttrs(context.Background(), severityToSlog(sev), msg, slog.String("component", component))
}

func (l *SlogLogger) Logf(sev common.Severity, component, format string, args ...any) {
	if sev < l.minLevel {
		return
	}
	l.Log(sev, component, fmt.Sprintf(format, args...))
}

func (l *SlogLogger) Error(err *common.Error) {
	if err == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("component", err.Component),
		slog.String("kind", err.Kind.String()),
	}
	if err.HasIndex {
		attrs = append(attrs, slog.Uint64("index", err.Index))
	}
	if err.HasChan {
		attrs = append(attrs, slog.Int("chan", int(err.ChanID)))
	}
	l.logger.LogAttrs(context.Background(), severityToSlog(err.Sev), err.Message, attrs...)
}

// Discard is a Logger that drops every message; useful in tests that only
// want to assert on decoder state, not log output.
var Discard Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Log(common.Severity, string, string)          {}
func (discardLogger) Logf(common.Severity, string, string, ...any) {}
func (discardLogger) Error(*common.Error)                          {}
