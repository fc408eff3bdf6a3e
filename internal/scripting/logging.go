package scripting

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEntry is one record retained by a RingHandler.
type LogEntry struct {
	Time    time.Time         `json:"time"`
	Level   slog.Level        `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs"`
}

// ringBuffer is shared by a RingHandler and every handler derived from it
// through WithAttrs or WithGroup.
type ringBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	max     int
}

// RingHandler is a slog.Handler that keeps the most recent records in memory
// and optionally forwards every record to a next handler.
type RingHandler struct {
	buf   *ringBuffer
	level slog.Leveler
	next  slog.Handler
	attrs []slog.Attr
	group string
}

// NewRingHandler creates a handler retaining up to maxEntries records at or
// above level. next may be nil.
func NewRingHandler(maxEntries int, level slog.Leveler, next slog.Handler) *RingHandler {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &RingHandler{
		buf:   &ringBuffer{max: maxEntries, entries: make([]LogEntry, 0, maxEntries)},
		level: level,
		next:  next,
	}
}

// Enabled implements slog.Handler.
func (h *RingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= h.level.Level() {
		return true
	}
	return h.next != nil && h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RingHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= h.level.Level() {
		attrs := make(map[string]string, len(h.attrs)+record.NumAttrs())
		for _, a := range h.attrs {
			attrs[a.Key] = a.Value.String()
		}
		record.Attrs(func(a slog.Attr) bool {
			attrs[h.qualify(a.Key)] = a.Value.String()
			return true
		})
		h.buf.append(LogEntry{
			Time:    record.Time,
			Level:   record.Level,
			Message: record.Message,
			Attrs:   attrs,
		})
	}
	if h.next != nil && h.next.Enabled(ctx, record.Level) {
		return h.next.Handle(ctx, record)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(clone.attrs, h.attrs)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, slog.Attr{Key: h.qualify(a.Key), Value: a.Value})
	}
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	return &clone
}

// WithGroup implements slog.Handler.
func (h *RingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = h.qualify(name)
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	return &clone
}

func (h *RingHandler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

// Entries returns a copy of every retained record, oldest first.
func (h *RingHandler) Entries() []LogEntry {
	h.buf.mu.RLock()
	defer h.buf.mu.RUnlock()
	out := make([]LogEntry, len(h.buf.entries))
	copy(out, h.buf.entries)
	return out
}

// Search returns retained records whose message contains query, ignoring case.
func (h *RingHandler) Search(query string) []LogEntry {
	query = strings.ToLower(query)
	var out []LogEntry
	for _, e := range h.Entries() {
		if strings.Contains(strings.ToLower(e.Message), query) {
			out = append(out, e)
		}
	}
	return out
}

// Clear drops every retained record.
func (h *RingHandler) Clear() {
	h.buf.mu.Lock()
	h.buf.entries = h.buf.entries[:0]
	h.buf.mu.Unlock()
}

func (b *ringBuffer) append(e LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == b.max {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:len(b.entries)-1]
	}
	b.entries = append(b.entries, e)
}
