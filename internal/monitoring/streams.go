package monitoring

import (
	"io"
	"log"
)

// Streams carries the three logging levels a localization run emits:
// ops (actionable warnings, aborted runs, data loss), diag (per-run
// diagnostics and tuning context), and trace (per-step telemetry, high
// frequency). A nil writer disables that stream.
type Streams struct {
	ops   *log.Logger
	diag  *log.Logger
	trace *log.Logger
}

// NewStreams builds a stream set writing to the given writers with a
// shared prefix. Pass nil for any writer to disable that stream.
func NewStreams(prefix string, ops, diag, trace io.Writer) *Streams {
	return &Streams{
		ops:   newLogger(prefix, ops),
		diag:  newLogger(prefix, diag),
		trace: newLogger(prefix, trace),
	}
}

// NewSingleStream routes all three streams to one writer. Pass nil to
// disable all logging.
func NewSingleStream(prefix string, w io.Writer) *Streams {
	return NewStreams(prefix, w, w, w)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs to the ops stream.
func (s *Streams) Opsf(format string, args ...interface{}) {
	if s != nil && s.ops != nil {
		s.ops.Printf(format, args...)
	}
}

// Diagf logs to the diag stream.
func (s *Streams) Diagf(format string, args ...interface{}) {
	if s != nil && s.diag != nil {
		s.diag.Printf(format, args...)
	}
}

// Tracef logs to the trace stream.
func (s *Streams) Tracef(format string, args ...interface{}) {
	if s != nil && s.trace != nil {
		s.trace.Printf(format, args...)
	}
}
