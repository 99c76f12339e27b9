// Package logging builds the process logger: text on stderr, plus a rotated
// JSON file when one is configured.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps debug/info/warn/error (any case) to a slog level.
// Unknown values yield info.
func ParseLevel(s string) slog.Level {
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to stderr at the given level. When file is
// non-empty, records are also written as JSON to a size-rotated file; the
// returned Closer releases it.
func New(level, file string) (*slog.Logger, io.Closer) {
	return newWithWriter(os.Stderr, level, file)
}

func newWithWriter(w io.Writer, level, file string) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	text := slog.NewTextHandler(w, opts)
	if file == "" {
		return slog.New(text), nopCloser{}
	}

	rotated := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	return slog.New(slogmulti.Fanout(text, slog.NewJSONHandler(rotated, opts))), rotated
}
