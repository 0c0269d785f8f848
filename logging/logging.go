// Package logging builds the structured loggers used across the API. Every
// component logs through a channel-scoped child of one root logger so output
// can be filtered per subsystem.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Channel names a logical logging channel.
type Channel string

const (
	ChannelStartup  Channel = "startup"
	ChannelShutdown Channel = "shutdown"
	ChannelHTTP     Channel = "http"
	ChannelAuth     Channel = "auth"
	ChannelIngest   Channel = "ingest"
	ChannelDatabase Channel = "database"
	ChannelTracker  Channel = "tracker"
)

// New returns a root logger writing to stdout.
func New(level, format string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter returns a root logger writing to w.
func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// For returns a child logger tagged with the given channel.
func For(logger *slog.Logger, ch Channel) *slog.Logger {
	if logger == nil {
		logger = Discard()
	}
	return logger.With("channel", string(ch))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
