package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"routeconv/internal/config"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiCyan   = "\x1b[36m"
	ansiGray   = "\x1b[90m"
)

// New builds slog logger from console/file sink settings.
// Params: cfg validated logging config.
// Returns: logger, close function for file sink, and setup error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	handlers := make([]slog.Handler, 0, 2)
	closeFn := func() {}

	if cfg.Console.Enabled {
		handler, err := newHandler(os.Stderr, cfg.Console, isTerminal(os.Stderr))
		if err != nil {
			return nil, nil, fmt.Errorf("console sink: %w", err)
		}
		handlers = append(handlers, handler)
	}

	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %q: %w", path, err)
		}
		handler, err := newHandler(file, cfg.File, false)
		if err != nil {
			_ = file.Close()
			return nil, nil, fmt.Errorf("file sink: %w", err)
		}
		handlers = append(handlers, handler)

		var once sync.Once
		closeFn = func() {
			once.Do(func() {
				_ = file.Close()
			})
		}
	}

	if len(handlers) == 0 {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), closeFn, nil
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), closeFn, nil
	}
	return slog.New(fanoutHandler{handlers: handlers}), closeFn, nil
}

// ParseLevel converts config level name into slog level.
// Params: level lower-case name.
// Returns: slog level or error for unsupported names.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported level %q", level)
	}
}

// newHandler creates one sink handler for the configured format.
// Params: dst output writer; sink options; colorize enables ANSI highlighting for line format.
// Returns: slog handler or error.
func newHandler(dst io.Writer, sink config.LogSinkConfig, colorize bool) (slog.Handler, error) {
	level, err := ParseLevel(sink.Level)
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "json":
		return slog.NewJSONHandler(dst, options), nil
	case "", "line":
		if colorize {
			dst = &colorLineWriter{dst: dst}
		}
		return slog.NewTextHandler(dst, options), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", sink.Format)
	}
}

// isTerminal reports whether file is attached to a character device.
// Params: file output file.
// Returns: true for interactive terminals.
func isTerminal(file *os.File) bool {
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

type fanoutHandler struct {
	handlers []slog.Handler
}

// Enabled reports whether at least one child handler accepts level.
// Params: ctx context; level record level.
// Returns: true when any child is enabled.
func (h fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards record to every enabled child handler.
// Params: ctx context; record log record.
// Returns: joined child errors.
func (h fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs returns fanout handler with attrs applied to each child.
// Params: attrs attributes.
// Returns: derived handler.
func (h fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		next = append(next, handler.WithAttrs(attrs))
	}
	return fanoutHandler{handlers: next}
}

// WithGroup returns fanout handler with group applied to each child.
// Params: name group name.
// Returns: derived handler.
func (h fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		next = append(next, handler.WithGroup(name))
	}
	return fanoutHandler{handlers: next}
}

// colorLineWriter highlights text-handler lines for terminals.
type colorLineWriter struct {
	mu  sync.Mutex
	dst io.Writer
}

// Write colors one slog text line and forwards it.
// Params: payload one formatted record line.
// Returns: input length to satisfy slog writer contract, or write error.
func (w *colorLineWriter) Write(payload []byte) (int, error) {
	line := string(payload)
	base := levelColor(line)

	w.mu.Lock()
	defer w.mu.Unlock()

	if base == "" {
		if _, err := io.WriteString(w.dst, line); err != nil {
			return 0, err
		}
		return len(payload), nil
	}

	trailing := ""
	if strings.HasSuffix(line, "\n") {
		line = strings.TrimSuffix(line, "\n")
		trailing = "\n"
	}

	var builder strings.Builder
	builder.Grow(len(line) + 64)
	builder.WriteString(base)
	for idx, token := range splitTokens(line) {
		if idx > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(colorToken(token, base))
	}
	builder.WriteString(ansiReset)
	builder.WriteString(trailing)

	if _, err := io.WriteString(w.dst, builder.String()); err != nil {
		return 0, err
	}
	return len(payload), nil
}

// levelColor selects line base color by slog level field.
// Params: line formatted text record.
// Returns: ANSI color or empty string for unknown level.
func levelColor(line string) string {
	switch {
	case strings.Contains(line, "level=DEBUG"):
		return ansiGray
	case strings.Contains(line, "level=INFO"):
		return ansiBlue
	case strings.Contains(line, "level=WARN"):
		return ansiYellow
	case strings.Contains(line, "level=ERROR"):
		return ansiRed
	default:
		return ""
	}
}

// splitTokens splits line on spaces outside double quotes.
// Params: line formatted text record.
// Returns: tokens in original order.
func splitTokens(line string) []string {
	tokens := make([]string, 0, 8)
	start := 0
	quoted := false
	escaped := false
	for idx := 0; idx < len(line); idx++ {
		ch := line[idx]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && quoted:
			escaped = true
		case ch == '"':
			quoted = !quoted
		case ch == ' ' && !quoted:
			tokens = append(tokens, line[start:idx])
			start = idx + 1
		}
	}
	return append(tokens, line[start:])
}

// colorToken highlights the value part of key=value tokens.
// Params: token one line token; base line color restored after value.
// Returns: colored token.
func colorToken(token string, base string) string {
	key, value, ok := strings.Cut(token, "=")
	if !ok || value == "" || key == "level" || key == "time" {
		return token
	}

	color := valueColor(value)
	if color == "" {
		return token
	}
	return key + "=" + color + value + ansiReset + base
}

// valueColor picks color for quoted strings, IP addresses and numbers.
// Params: value raw token value.
// Returns: ANSI color or empty string.
func valueColor(value string) string {
	if strings.HasPrefix(value, `"`) {
		return ansiGreen
	}
	host := value
	if h, _, err := net.SplitHostPort(value); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil {
		return ansiCyan
	}
	if isNumber(value) {
		return ansiYellow
	}
	return ""
}

// isNumber reports whether value is a plain decimal number.
// Params: value token text.
// Returns: true for digits with optional sign, dot and unit-less fraction.
func isNumber(value string) bool {
	if value == "" {
		return false
	}
	digits := 0
	for idx, ch := range value {
		switch {
		case ch >= '0' && ch <= '9':
			digits++
		case ch == '.':
		case ch == '-' && idx == 0:
		default:
			return false
		}
	}
	return digits > 0
}
