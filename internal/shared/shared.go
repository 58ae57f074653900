// package shared defines shared helpers
package shared

import (
	"crypto/rand"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// sessionAlphabet matches the base36 tokens the front end expects in URLs.
const sessionAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// SessionIDLength is the length of an externally visible session handle.
const SessionIDLength = 8

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// GenerateSessionID generates a short URL-safe session handle from crypto/rand.
//
// Eight base36 characters (~41 bits); collisions are guarded at the store layer.
func GenerateSessionID() string {
	buf := make([]byte, SessionIDLength)
	rand.Read(buf)
	for i := range buf {
		buf[i] = sessionAlphabet[int(buf[i])%len(sessionAlphabet)]
	}
	return string(buf)
}
