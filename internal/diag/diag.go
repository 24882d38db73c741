// Package diag captures raw API responses that failed to decode, so the
// payload that broke a release can be recovered from a user's machine.
package diag

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger appends decode-failure captures to a rotated log file. Capture
// must never disturb the caller: every failure inside Record is swallowed
// and at most logged.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	path    string
	writer  io.WriteCloser
	logger  *slog.Logger
	now     func() time.Time
}

// LoggerOptions configures the diagnostics logger.
type LoggerOptions struct {
	Path       string // defaults to DefaultPath()
	Enabled    bool
	MaxSizeMB  int // rotate after this size, default 5
	MaxBackups int // rotated files to keep, default 2
	MaxAgeDays int // prune rotated files after, default 14
	Logger     *slog.Logger
}

// Entry is one captured decode failure, written as a JSON line.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	Endpoint    string    `json:"endpoint"`
	Status      int       `json:"status"`
	ContentType string    `json:"content_type,omitempty"`
	Reason      string    `json:"reason"`
	BodySize    int       `json:"body_size"`
	BodyText    string    `json:"body_text,omitempty"`
	BodyBase64  string    `json:"body_base64,omitempty"`
}

// NewLogger creates a diagnostics logger backed by a rotated file.
func NewLogger(opts LoggerOptions) *Logger {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	path := opts.Path
	if path == "" {
		path = DefaultPath()
	}
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 5
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 2
	}
	maxAge := opts.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 14
	}

	return &Logger{
		enabled: opts.Enabled,
		path:    path,
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   true,
		},
		logger: logger,
		now:    time.Now,
	}
}

// DefaultPath returns the per-user diagnostics log location.
func DefaultPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "CloudflareStatusBar", "diagnostics.log")
}

// RecordDecodeFailure appends a capture entry. The body is stored as text
// when it is valid UTF-8 and base64 otherwise. It returns the log path
// when the entry was written, so callers can point the user at it.
func (l *Logger) RecordDecodeFailure(endpoint string, status int, contentType string, cause error, body []byte) (string, bool) {
	if l == nil {
		return "", false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return "", false
	}

	entry := Entry{
		Timestamp:   l.now().UTC(),
		Endpoint:    endpoint,
		Status:      status,
		ContentType: contentType,
		BodySize:    len(body),
	}
	if cause != nil {
		entry.Reason = cause.Error()
	}
	if utf8.Valid(body) {
		entry.BodyText = string(body)
	} else {
		entry.BodyBase64 = base64.StdEncoding.EncodeToString(body)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Warn("failed to encode diagnostics entry", "error", err)
		return "", false
	}
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		l.logger.Warn("failed to write diagnostics entry", "path", l.path, "error", err)
		return "", false
	}
	return l.path, true
}

// SetEnabled toggles capture at runtime.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// Enabled reports whether capture is on.
func (l *Logger) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Path returns the diagnostics log location.
func (l *Logger) Path() string {
	return l.path
}

// Close flushes and closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer.Close()
}
