// Package logger provides structured logging for dropgate on top of
// log/slog. The package keeps a single process-wide logger configured at
// startup; the minimum level can be changed at runtime, which the config
// watcher uses to flip DEBUG logging on a running server.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

var (
	mu       sync.RWMutex
	slogger  *slog.Logger
	levelVar = new(slog.LevelVar)
	output   io.Writer = os.Stdout
	useColor bool
)

func init() {
	if f, ok := output.(*os.File); ok {
		useColor = isTerminal(f.Fd())
	}
	rebuild("text")
}

// parseLevel maps a level name to a slog.Level. Unknown names fall back
// to INFO.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// rebuild swaps the active handler. Callers must hold mu or be in init.
func rebuild(format string) {
	opts := &slog.HandlerOptions{Level: levelVar}

	var h slog.Handler
	if strings.ToLower(format) == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = newTextHandler(output, opts, useColor)
	}
	slogger = slog.New(h)
}

// Init configures the process logger. Output may be "stdout", "stderr"
// or a file path, which is opened in append mode.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		output = os.Stdout
		useColor = isTerminal(os.Stdout.Fd())
	case "stderr":
		output = os.Stderr
		useColor = isTerminal(os.Stderr.Fd())
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		output = f
		useColor = false
	}

	levelVar.Set(parseLevel(cfg.Level))
	rebuild(cfg.Format)
	return nil
}

// InitWithWriter points the logger at an arbitrary writer. Used by tests.
func InitWithWriter(w io.Writer, level, format string) {
	mu.Lock()
	defer mu.Unlock()

	output = w
	useColor = false
	levelVar.Set(parseLevel(level))
	rebuild(format)
}

// SetLevel changes the minimum level of the running logger. Invalid
// names are ignored.
func SetLevel(level string) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG", "INFO", "WARN", "ERROR":
		levelVar.Set(parseLevel(level))
	}
}

// Level reports the current minimum level name.
func Level() string {
	switch levelVar.Level() {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func get() *slog.Logger {
	mu.RLock()
	l := slogger
	mu.RUnlock()
	return l
}

// Debug logs at debug level with key/value pairs.
func Debug(msg string, args ...any) { get().Debug(msg, args...) }

// Info logs at info level with key/value pairs.
func Info(msg string, args ...any) { get().Info(msg, args...) }

// Warn logs at warn level with key/value pairs.
func Warn(msg string, args ...any) { get().Warn(msg, args...) }

// Error logs at error level with key/value pairs.
func Error(msg string, args ...any) { get().Error(msg, args...) }

// With returns a slog.Logger carrying pre-bound attributes.
func With(args ...any) *slog.Logger { return get().With(args...) }
