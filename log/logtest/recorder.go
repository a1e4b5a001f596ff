/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides a recording log.FieldLogger for assertions in tests.
package logtest

import (
	"sync"

	"github.com/ssgreg/logf"

	"github.com/multisig/chainfetch/log"
)

// RecordedEntry is a single captured log entry.
type RecordedEntry struct {
	Level  log.Level
	Text   string
	Fields []log.Field
}

// FindField returns the field with the given key.
func (re *RecordedEntry) FindField(key string) (log.Field, bool) {
	for _, field := range re.Fields {
		if field.Key == key {
			return field, true
		}
	}
	return log.Field{}, false
}

type recordingWriter struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic
func (w *recordingWriter) WriteEntry(e logf.Entry) {
	fields := append(append([]log.Field{}, e.DerivedFields...), e.Fields...)
	w.mu.Lock()
	w.entries = append(w.entries, RecordedEntry{Level: fromLogfLevel(e.Level), Text: e.Text, Fields: fields})
	w.mu.Unlock()
}

// Recorder is a log.FieldLogger (at debug level) that keeps every entry in memory.
type Recorder struct {
	*log.LogfAdapter
	writer *recordingWriter
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	w := &recordingWriter{}
	return &Recorder{&log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, w)}, w}
}

// With returns a child Recorder sharing the same storage.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{r.LogfAdapter.With(fs...).(*log.LogfAdapter), r.writer}
}

// Entries returns a copy of all recorded entries.
func (r *Recorder) Entries() []RecordedEntry {
	r.writer.mu.RLock()
	defer r.writer.mu.RUnlock()
	return append([]RecordedEntry{}, r.writer.entries...)
}

// FindEntry returns the first entry with the given message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	for _, entry := range r.Entries() {
		if entry.Text == msg {
			return entry, true
		}
	}
	return RecordedEntry{}, false
}

// FindAllEntries returns all entries with the given message.
func (r *Recorder) FindAllEntries(msg string) []RecordedEntry {
	var found []RecordedEntry
	for _, entry := range r.Entries() {
		if entry.Text == msg {
			found = append(found, entry)
		}
	}
	return found
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.writer.mu.Lock()
	r.writer.entries = nil
	r.writer.mu.Unlock()
}

func fromLogfLevel(level logf.Level) log.Level {
	switch level {
	case logf.LevelError:
		return log.LevelError
	case logf.LevelWarn:
		return log.LevelWarn
	case logf.LevelDebug:
		return log.LevelDebug
	}
	return log.LevelInfo
}
