// Package testlog provides a log.Logger that records entries for assertions.
package testlog

import (
	"strings"
	"sync"

	"github.com/bft-labs/walfollow/pkg/log"
)

// Level names used in recorded entries.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Entry is one recorded log call.
type Entry struct {
	Level   string
	Message string
	Fields  []log.Field
}

// Field returns the value of the named field, or nil.
func (e Entry) Field(key string) interface{} {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

// Recorder is a concurrency-safe recording logger.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(level, msg string, fields []log.Field) {
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Level: level, Message: msg, Fields: fields})
	r.mu.Unlock()
}

func (r *Recorder) Debug(msg string, fields ...log.Field) { r.record(LevelDebug, msg, fields) }
func (r *Recorder) Info(msg string, fields ...log.Field)  { r.record(LevelInfo, msg, fields) }
func (r *Recorder) Warn(msg string, fields ...log.Field)  { r.record(LevelWarn, msg, fields) }
func (r *Recorder) Error(msg string, fields ...log.Field) { r.record(LevelError, msg, fields) }

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Count returns how many entries at level have a message starting with prefix.
// An empty level matches any level.
func (r *Recorder) Count(level, prefix string) int {
	n := 0
	for _, e := range r.Entries() {
		if (level == "" || e.Level == level) && strings.HasPrefix(e.Message, prefix) {
			n++
		}
	}
	return n
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}
