package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

type Config struct {
	Level string
	// Format is "text", "json" or "console". Empty picks console on a
	// terminal and json otherwise.
	Format string
	Output io.Writer
}

var once sync.Once

// Init installs the process-wide default logger. Only the first call has
// an effect.
func Init(cfg Config) {
	once.Do(func() {
		if cfg.Output == nil {
			cfg.Output = os.Stdout
		}
		slog.SetDefault(slog.New(newHandler(cfg)))
	})
}

func newHandler(cfg Config) slog.Handler {
	level := parseLevel(cfg.Level)
	switch resolveFormat(cfg.Format, cfg.Output) {
	case "json":
		return slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{Level: level})
	case "text":
		return slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{Level: level})
	default:
		return newConsoleHandler(cfg.Output, level, isTerminal(cfg.Output))
	}
}

func resolveFormat(format string, w io.Writer) string {
	if format != "" {
		return format
	}
	if isTerminal(w) {
		return "console"
	}
	return "json"
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// OpenFile opens path for appending log lines, creating it if needed.
func OpenFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func parseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// consoleHandler outputs human-friendly log lines:
//
//	12:00:00 INFO  Session connected  session=1f0c2b9e server=mc.example.com:25565
//
// Handlers derived with WithAttrs/WithGroup share the writer lock, so lines
// from concurrent sessions never interleave.
type consoleHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Level
	color bool

	// prefix holds the pre-formatted WithAttrs output.
	prefix string
	group  string
}

func newConsoleHandler(w io.Writer, level slog.Level, color bool) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level, color: color}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString(r.Time.Format(time.TimeOnly))
	buf.WriteByte(' ')
	buf.WriteString(levelTag(r.Level, h.color))
	buf.WriteByte(' ')
	buf.WriteString(r.Message)
	buf.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(formatAttr(h.group, a))
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	var b strings.Builder
	b.WriteString(h.prefix)
	for _, a := range attrs {
		b.WriteString(formatAttr(h.group, a))
	}
	next.prefix = b.String()
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = joinKey(h.group, name)
	return &next
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

func levelTag(l slog.Level, color bool) string {
	var tag, c string
	switch {
	case l >= slog.LevelError:
		tag, c = "ERROR", colorRed
	case l >= slog.LevelWarn:
		tag, c = "WARN ", colorYellow
	case l >= slog.LevelInfo:
		tag = "INFO "
	default:
		tag, c = "DEBUG", colorGray
	}
	if !color || c == "" {
		return tag
	}
	return c + tag + colorReset
}

// sessionIDLen is how much of a session uuid the console shows.
const sessionIDLen = 8

func formatAttr(group string, a slog.Attr) string {
	a.Value = a.Value.Resolve()
	if a.Key == "" && a.Value.Kind() != slog.KindGroup {
		return ""
	}
	key := joinKey(group, a.Key)
	if a.Value.Kind() == slog.KindGroup {
		var b strings.Builder
		for _, sub := range a.Value.Group() {
			b.WriteString(formatAttr(key, sub))
		}
		return b.String()
	}
	return "  " + key + "=" + formatValue(a.Key, a.Value)
}

func formatValue(key string, v slog.Value) string {
	s := v.String()
	if key == "session" && len(s) > sessionIDLen {
		return s[:sessionIDLen]
	}
	if v.Kind() != slog.KindString {
		return s
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func joinKey(group, key string) string {
	if key == "" {
		return group
	}
	if group == "" {
		return key
	}
	return group + "." + key
}
