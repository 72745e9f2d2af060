package logging

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

const defaultRingSize = 500

// Entry is one captured log line, JSON-ready for the logs endpoint.
type Entry struct {
	Time    time.Time      `json:"ts"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Ring is a fixed-capacity buffer of recent log entries. Writers (the zap
// core) and readers (the HTTP handler) run on different goroutines, so all
// access is mutex-guarded.
type Ring struct {
	mu   sync.Mutex
	buf  []Entry
	next int
	full bool
}

// NewRing builds a ring holding at most size entries.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = defaultRingSize
	}
	return &Ring{buf: make([]Entry, size)}
}

// Add appends an entry, evicting the oldest once the ring is full.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = e
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// Len reports how many entries the ring currently holds.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Tail returns up to limit entries, oldest first, newest last. A limit <= 0
// returns everything held.
func (r *Ring) Tail(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	start := 0
	if r.full {
		size = len(r.buf)
		start = r.next
	}
	out := make([]Entry, 0, size)
	for i := 0; i < size; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// ringCore is a zapcore.Core that mirrors entries into a Ring.
type ringCore struct {
	zapcore.LevelEnabler
	ring   *Ring
	fields []zapcore.Field
}

func newRingCore(ring *Ring, enab zapcore.LevelEnabler) *ringCore {
	return &ringCore{LevelEnabler: enab, ring: ring}
}

func (c *ringCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &ringCore{LevelEnabler: c.LevelEnabler, ring: c.ring}
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return clone
}

func (c *ringCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *ringCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	var m map[string]any
	if len(c.fields) > 0 || len(fields) > 0 {
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range c.fields {
			f.AddTo(enc)
		}
		for _, f := range fields {
			f.AddTo(enc)
		}
		m = enc.Fields
	}
	c.ring.Add(Entry{
		Time:    ent.Time,
		Level:   ent.Level.String(),
		Message: ent.Message,
		Fields:  m,
	})
	return nil
}

func (c *ringCore) Sync() error { return nil }
