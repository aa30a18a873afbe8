// Package notify delivers progress notifications about a run. Sinks are purely observational, a
// failing sink never affects the run it reports on.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

type Notification struct {
	Title    string
	Message  string
	Severity Severity
}

type Sink interface {
	Notify(ctx context.Context, title, message string, severity Severity)
}

// LogSink writes notifications as structured log lines.
type LogSink struct{}

func (LogSink) Notify(ctx context.Context, title, message string, severity Severity) {
	level := slog.LevelInfo
	if severity == SeverityError {
		level = slog.LevelError
	}
	slog.Log(ctx, level, title, "message", message, "severity", severity.String())
}

// MultiSink fans a notification out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, title, message string, severity Severity) {
	for _, sink := range m {
		sink.Notify(ctx, title, message, severity)
	}
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mutex         sync.Mutex
	notifications []Notification
}

func (r *Recorder) Notify(ctx context.Context, title, message string, severity Severity) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.notifications = append(r.notifications, Notification{
		Title:    title,
		Message:  message,
		Severity: severity,
	})
}

func (r *Recorder) Notifications() []Notification {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Notification(nil), r.notifications...)
}

// Titles returns the titles of the recorded notifications with the given severity.
func (r *Recorder) Titles(severity Severity) []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var out []string
	for _, n := range r.notifications {
		if n.Severity == severity {
			out = append(out, n.Title)
		}
	}
	return out
}
