// Package errlog provides an append-only, size-capped diagnostic log.
//
// Entries are keyed by short category codes (ORIGIN, CSRF, RLIMIT, CONFIG,
// SMTP) with an opaque detail string. Detail must never contain secrets, full
// addresses, or raw error text from upstream systems; callers pass truncated
// hashes or already-public identifiers instead.
//
// Recording is fire-and-forget: Record never returns an error, so a broken
// log file cannot take the submission pipeline down with it.
package errlog

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Well-known category codes.
const (
	CodeOrigin = "ORIGIN"
	CodeCSRF   = "CSRF"
	CodeRLimit = "RLIMIT"
	CodeConfig = "CONFIG"
	CodeSMTP   = "SMTP"
)

// DefaultMaxBytes is the default log size cap (1 MiB).
const DefaultMaxBytes int64 = 1 << 20

// Log is a file-backed diagnostic log with a rotation-by-reset policy: when
// the file exceeds the byte cap it is truncated to empty before the next
// line is appended. There is no multi-file rotation.
type Log struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	now      func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// New creates a Log writing to path with the given byte cap.
// A maxBytes of zero or less falls back to DefaultMaxBytes.
func New(path string, maxBytes int64, opts ...Option) *Log {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	l := &Log{
		path:     path,
		maxBytes: maxBytes,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends one entry: timestamp, category code, detail. Failures are
// silently dropped; the caller's request must not fail because the log did.
func (l *Log) Record(code, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if info, err := os.Stat(l.path); err == nil && info.Size() > l.maxBytes {
		if err := os.Truncate(l.path, 0); err != nil {
			return
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s: %s\n", l.now().Format(time.RFC3339), code, detail)
	f.WriteString(line)
}
