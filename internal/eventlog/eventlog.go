// Package eventlog appends structured JSONL records describing greeter
// lifecycle events. The log is off unless a path is configured; credential
// material is never written.
package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Logger struct {
	path string
	mu   sync.Mutex
	seq  uint64
}

type record struct {
	Timestamp     string `json:"timestamp"`
	Seq           uint64 `json:"seq"`
	Source        string `json:"source"`
	Type          string `json:"type"`
	Payload       any    `json:"payload,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// New returns a logger appending to path, or a disabled logger when path is
// empty. A nil or disabled logger swallows all appends.
func New(path string) *Logger {
	if path == "" {
		return nil
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	return &Logger{path: path}
}

// Append writes one event record. Failures are swallowed: the greeter must
// never die over its own diagnostics.
func (l *Logger) Append(source, eventType string, payload any, correlationID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	rec := record{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Seq:           l.seq,
		Source:        source,
		Type:          eventType,
		Payload:       payload,
		CorrelationID: correlationID,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	_, _ = f.Write(append(b, '\n'))
	_ = f.Close()
}

// NewCorrelationID tags the records of one daemon exchange.
func NewCorrelationID() string {
	return uuid.NewString()
}
