// Package notify carries user-facing notifications (the CLI's equivalent of
// toast messages) from the API client and coordinators to whatever is
// presenting them: a log, a terminal, or the dashboard.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier receives user-facing notifications.
type Notifier interface {
	Notify(level Level, msg string)
}

// Func adapts a function to the Notifier interface.
type Func func(level Level, msg string)

// Notify calls f(level, msg).
func (f Func) Notify(level Level, msg string) { f(level, msg) }

// Discard drops every notification.
var Discard Notifier = Func(func(Level, string) {})

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs msg at a slog level matching the notification level.
func (n LogNotifier) Notify(level Level, msg string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch level {
	case LevelError:
		logger.Error(msg, "notification", string(level))
	case LevelWarning:
		logger.Warn(msg, "notification", string(level))
	default:
		logger.Info(msg, "notification", string(level))
	}
}

// Note is a recorded notification.
type Note struct {
	Level Level     `json:"level"`
	Msg   string    `json:"message"`
	At    time.Time `json:"at"`
}

// Recorder keeps the most recent notifications in memory and forwards them
// to an optional next Notifier.
type Recorder struct {
	mu    sync.Mutex
	notes []Note
	limit int
	next  Notifier
}

// NewRecorder keeps up to limit notes (0 means unbounded) and forwards to next if non-nil.
func NewRecorder(limit int, next Notifier) *Recorder {
	return &Recorder{limit: limit, next: next}
}

// Notify records the note and forwards it.
func (r *Recorder) Notify(level Level, msg string) {
	r.mu.Lock()
	r.notes = append(r.notes, Note{Level: level, Msg: msg, At: time.Now()})
	if r.limit > 0 && len(r.notes) > r.limit {
		r.notes = r.notes[len(r.notes)-r.limit:]
	}
	r.mu.Unlock()

	if r.next != nil {
		r.next.Notify(level, msg)
	}
}

// Notes returns a copy of the recorded notes, oldest first.
func (r *Recorder) Notes() []Note {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Note, len(r.notes))
	copy(out, r.notes)
	return out
}

// Count returns how many recorded notes have the given level.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Level == level {
			n++
		}
	}
	return n
}
