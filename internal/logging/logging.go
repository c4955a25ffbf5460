// Package logging builds the slog handlers used by the nextiso CLI and
// daemon.
//
// Two formats are supported. The pretty format prints one terse line per
// record ("INFO  building stage stage=preflight") and is meant for
// terminals; the JSON format emits one object per record and is meant for
// the daemon when its output is collected by a supervisor.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Output format of a handler.
type Format string

const (
	FormatPretty Format = "pretty"
	FormatJSON   Format = "json"
)

// Creates a logger writing records at or above level to w.
//
// Verbose pretty output includes timestamps; terse output omits them.
func New(w io.Writer, format Format, level slog.Leveler, verbose bool) *slog.Logger {
	if level == nil {
		level = slog.LevelInfo
	}

	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, AddSource: verbose}))
	}

	return slog.New(&prettyHandler{
		out:     &lockedWriter{w: w},
		level:   level,
		verbose: verbose,
	})
}

// Parses a format name, accepting an empty string as pretty.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatPretty:
		return FormatPretty, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown log format %q", s)
	}
}

// Serialises writes from handlers derived through WithAttrs/WithGroup.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) write(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := io.WriteString(l.w, s)
	return err
}

type prettyHandler struct {
	out     *lockedWriter
	level   slog.Leveler
	verbose bool
	prefix  string      // Dotted group prefix applied to attribute keys.
	attrs   []slog.Attr // Attributes already qualified with their group prefix.
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%-5s ", r.Level.String()))
	if h.verbose {
		ts := r.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		b.WriteString(ts.Format(time.TimeOnly))
		b.WriteByte(' ')
	}
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		appendAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.prefix, a)
		return true
	})

	b.WriteByte('\n')
	return h.out.write(b.String())
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if v.Kind() == slog.KindGroup {
		for _, nested := range v.Group() {
			appendAttr(b, prefix+a.Key+".", nested)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(formatValue(v))
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return strconv.Quote(err.Error())
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}
