// Package audit writes one tamper-evident, secret-free event per dispatch
// attempt. Events always go to the control stream; a file sink is
// best-effort with size-based rotation. No I/O failure inside this package
// may ever abort or alter tool execution, so every sink error is swallowed.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeDenied    = "denied"
	OutcomeFailed    = "failed"
)

// UnknownRepository is recorded when a dispatch has no repository target.
const UnknownRepository = "<unknown>"

// Event is one audit line. Field order is fixed (sorted keys) so the
// newline-delimited JSON output is deterministic. The correlation id is
// random and request-scoped; no field may carry token or key material.
type Event struct {
	CorrelationID string `json:"correlation_id"`
	DurationMS    *int64 `json:"duration_ms,omitempty"`
	Operation     string `json:"operation"`
	Outcome       string `json:"outcome"`
	Reason        string `json:"reason,omitempty"`
	Repository    string `json:"repository"`
	Timestamp     string `json:"timestamp"`
}

// Logger appends events to the control stream and, when configured, to a
// rotating file sink.
type Logger struct {
	mu         sync.Mutex
	control    io.Writer
	path       string
	maxBytes   int64
	maxBackups int
}

// New returns a logger with a file sink at path. maxBytes is the rotation
// threshold; maxBackups numbered backups are kept (zero means truncate in
// place).
func New(path string, maxBytes int64, maxBackups int, control io.Writer) *Logger {
	if control == nil {
		control = os.Stderr
	}
	return &Logger{control: control, path: path, maxBytes: maxBytes, maxBackups: maxBackups}
}

// NewStandalone returns a file-less logger. The dispatcher uses it when the
// runtime itself cannot be built, so the audit event is not lost.
func NewStandalone(control io.Writer) *Logger {
	if control == nil {
		control = os.Stderr
	}
	return &Logger{control: control}
}

// WriteEvent serializes the event as a single compact JSON line and emits it.
// The timestamp is filled in when the caller left it empty.
func (l *Logger) WriteEvent(e Event) {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if e.Repository == "" {
		e.Repository = UnknownRepository
	}

	// A plain json.Marshal would escape < and > and turn the unknown-repository
	// marker into <unknown>; the encoder keeps the line greppable.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return
	}
	line := buf.Bytes()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.control.Write(line)

	if l.path == "" {
		return
	}
	l.rotateIfNeeded()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return
	}
	f.Write(line)
	f.Close()
}

// rotateIfNeeded shifts numbered backups up one slot and moves the live file
// into slot 1 once it reaches the size threshold. With zero retained
// backups the live file is truncated instead. Failures are best-effort.
func (l *Logger) rotateIfNeeded() {
	info, err := os.Stat(l.path)
	if err != nil || info.Size() < l.maxBytes {
		return
	}

	if l.maxBackups == 0 {
		os.Truncate(l.path, 0)
		return
	}

	os.Remove(backupName(l.path, l.maxBackups))
	for i := l.maxBackups - 1; i >= 1; i-- {
		os.Rename(backupName(l.path, i), backupName(l.path, i+1))
	}
	os.Rename(l.path, backupName(l.path, 1))
}

func backupName(path string, slot int) string {
	return fmt.Sprintf("%s.%d", path, slot)
}

// MeasureStart captures a monotonic-clock instant for duration measurement.
func MeasureStart() time.Time {
	return time.Now()
}

// MeasureDuration returns whole milliseconds elapsed since start, immune to
// wall-clock adjustments.
func MeasureDuration(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
