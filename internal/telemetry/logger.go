// Package telemetry configures structured JSON logging for the runner.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// NewLogger builds a JSON slog.Logger writing to stdout (unless silent) and,
// when logFile is set, additionally fanning out to that file. It does not
// touch the package-level default logger.
func NewLogger(debug bool, logFile string, silent bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if !silent {
		handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
	}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err == nil {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err == nil {
				handlers = append(handlers, slog.NewJSONHandler(f, opts))
			} else {
				slog.Error("failed to open log file", "path", logFile, "error", err)
			}
		}
	}

	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewJSONHandler(io.Discard, opts))
	}

	var handler slog.Handler
	if len(handlers) > 1 {
		handler = &multiHandler{handlers: handlers}
	} else {
		handler = handlers[0]
	}

	return slog.New(handler)
}

// InitLogger builds a logger via NewLogger and installs it as the package
// default, so LogDebug/LogInfo/LogError/LogInfof reach it.
func InitLogger(debug bool, logFile string) {
	slog.SetDefault(NewLogger(debug, logFile, false))
}

// ProjectLogPath returns the per-project log file path under dir, the file
// `brain logs` reads for a single project.
func ProjectLogPath(dir, project string) string {
	return filepath.Join(dir, "logs", "brain-runner", project, "tui-logs.jsonl")
}

type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range m.handlers {
		if err := h.Handle(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: newHandlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: newHandlers}
}

// LogDebug logs a debug message.
func LogDebug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// LogInfo logs an info message.
func LogInfo(msg string, args ...any) {
	slog.Info(msg, args...)
}

// LogError logs an error message.
func LogError(msg string, err error, args ...any) {
	slog.Error(msg, append(args, "error", err)...)
}

// LogInfof logs an info message with formatting.
func LogInfof(format string, args ...any) {
	if slog.Default().Enabled(context.Background(), slog.LevelInfo) {
		slog.Info(fmt.Sprintf(format, args...))
	}
}
