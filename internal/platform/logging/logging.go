package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// Dir holds the rotating log file. Empty disables the file.
	Dir   string
	Level string
	// Stderr mirrors log records to stderr.
	Stderr bool
	// MaxSizeMB and MaxAgeDays bound the rotated files.
	MaxSizeMB  int
	MaxAgeDays int
}

// New builds a JSON slog logger over a rotating file. The returned closer
// flushes and closes the file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: create log dir %q: %w", opts.Dir, err)
		}
		w := &lumberjack.Logger{
			Filename: filepath.Join(opts.Dir, "driverd.slog"),
			MaxSize:  orDefault(opts.MaxSizeMB, 64), // MB
			MaxAge:   orDefault(opts.MaxAgeDays, 14),
			Compress: true,
		}
		writers = append(writers, w)
		closer = w
	}
	if opts.Stderr || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	h := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: lvl})
	lg := slog.New(h)

	lg.Info("logging started",
		slog.String("level", lvl.String()),
		slog.String("GOOS", runtime.GOOS),
		slog.String("GOARCH", runtime.GOARCH))

	return lg, closer, nil
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: invalid log level %q", s)
	}
}

// Discard returns a logger that drops everything. Used by tests and as a
// nil-safe default.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns lg, or a discarding logger when lg is nil.
func OrDiscard(lg *slog.Logger) *slog.Logger {
	if lg == nil {
		return Discard()
	}
	return lg
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
