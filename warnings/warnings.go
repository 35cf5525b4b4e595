// Package warnings implements the document's append-only warning log:
// the record of every recoverable condition absorbed while parsing,
// queried by collaborators after open completes rather than threaded
// through every function as an out-parameter.
package warnings

import (
	"log/slog"
	"sync"
)

// Kind names a recoverable condition. Unlike errs.Kind these never
// abort anything; they describe what was silently worked around.
type Kind string

const (
	UnterminatedString   Kind = "UnterminatedString"
	GarbageByte          Kind = "GarbageByte"
	MissingObjEndObj     Kind = "MissingObjEndObj"
	StreamLengthMismatch Kind = "StreamLengthMismatch"
	XrefRecovered        Kind = "XrefRecovered"
	XrefSubsectionFixup  Kind = "XrefSubsectionFixup"
	FilterRecovered      Kind = "FilterRecovered"
	PageTypeInferred     Kind = "PageTypeInferred"
)

// Warning is one entry in the log.
type Warning struct {
	Seq     uint64
	Kind    Kind
	Offset  int64
	Message string
}

// Log is a shared, append-only, thread-safe warning log. The zero
// value is ready to use.
type Log struct {
	mu     sync.Mutex
	seq    uint64
	items  []Warning
	logger *slog.Logger
}

// NewLog creates a Log that also mirrors every entry to logger at
// Debug level. A nil logger disables mirroring.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

// Add appends a warning and returns its assigned sequence number.
// Sequence numbers are monotonic but not otherwise ordered across
// concurrent callers.
func (l *Log) Add(kind Kind, offset int64, message string) uint64 {
	l.mu.Lock()
	l.seq++
	seq := l.seq
	w := Warning{Seq: seq, Kind: kind, Offset: offset, Message: message}
	l.items = append(l.items, w)
	logger := l.logger
	l.mu.Unlock()

	if logger != nil {
		logger.Debug("pdf: recovered", slog.String("kind", string(kind)), slog.Int64("offset", offset), slog.String("message", message))
	}
	return seq
}

// All returns a snapshot of the log in append order.
func (l *Log) All() []Warning {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Warning, len(l.items))
	copy(out, l.items)
	return out
}

// Len reports how many warnings have been recorded so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
