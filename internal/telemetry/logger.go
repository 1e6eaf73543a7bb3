package telemetry

import (
	"io"
	"log/slog"

	"golang.org/x/xerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger. level is a slog level name such as
// "debug" or "WARN+2"; an empty level means info. Records use the
// OpenTelemetry log data model keys.
func NewLogger(w io.Writer, level string, debug bool) (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if level != "" {
		if err := logLevel.UnmarshalText([]byte(level)); err != nil {
			return nil, xerrors.Errorf("failed to parse log level: %w", err)
		}
	}

	handlerOpts := &slog.HandlerOptions{
		Level: logLevel,
		// https://opentelemetry.io/docs/specs/otel/logs/data-model/
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				a.Key = "severitytext"
			case slog.MessageKey:
				a.Key = "body"
			}
			return a
		},
	}
	if debug {
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
}

func newLogFile(filename string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}
}
