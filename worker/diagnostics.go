package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// diagnostics collects the lines that end up in a job's message: records
// logged by the target at or above a threshold, plus Handle messages.
type diagnostics struct {
	mu    sync.Mutex
	lines []string
}

func (d *diagnostics) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	d.mu.Lock()
	d.lines = append(d.lines, line)
	d.mu.Unlock()
}

// flush returns everything collected so far and resets the buffer.
func (d *diagnostics) flush() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := strings.Join(d.lines, "\n")
	d.lines = nil
	return out
}

// sinkHandler is a slog.Handler that copies records at or above level into
// a diagnostics buffer and forwards every record to next.
type sinkHandler struct {
	diag   *diagnostics
	level  slog.Level
	next   slog.Handler
	attrs  []slog.Attr
	prefix string
}

var _ slog.Handler = (*sinkHandler)(nil)

func newSinkHandler(diag *diagnostics, level slog.Level, next slog.Handler) *sinkHandler {
	return &sinkHandler{diag: diag, level: level, next: next}
}

func (h *sinkHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level || h.next.Enabled(ctx, l)
}

func (h *sinkHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level {
		h.diag.add(h.format(r))
	}
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r.Clone())
	}
	return nil
}

func (h *sinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.next = h.next.WithAttrs(attrs)
	cp.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	cp.attrs = append(cp.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		cp.attrs = append(cp.attrs, a)
	}
	return &cp
}

func (h *sinkHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	cp.next = h.next.WithGroup(name)
	cp.prefix = h.prefix + name + "."
	return &cp
}

func (h *sinkHandler) format(r slog.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", r.Level, r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s%s=%v", h.prefix, a.Key, a.Value)
		return true
	})
	return b.String()
}
