package aim

import (
	"io"
	"log"
	"sync/atomic"
)

// Three logging streams, split by audience: ops carries actionable
// warnings, diag carries tuning context, trace carries per-batch
// telemetry. All streams are silent until SetLogWriters is called.
type logStreams struct {
	ops   *log.Logger
	diag  *log.Logger
	trace *log.Logger
}

var streams atomic.Pointer[logStreams]

// LogWriters holds the destination for each logging stream. A nil
// writer disables that stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

// SetLogWriters configures all three streams at once.
func SetLogWriters(w LogWriters) {
	s := &logStreams{}
	if w.Ops != nil {
		s.ops = log.New(w.Ops, "[aim] ", log.LstdFlags|log.Lmicroseconds)
	}
	if w.Diag != nil {
		s.diag = log.New(w.Diag, "[aim] ", log.LstdFlags|log.Lmicroseconds)
	}
	if w.Trace != nil {
		s.trace = log.New(w.Trace, "[aim] ", log.LstdFlags|log.Lmicroseconds)
	}
	streams.Store(s)
}

func opsf(format string, args ...interface{}) {
	if s := streams.Load(); s != nil && s.ops != nil {
		s.ops.Printf(format, args...)
	}
}

func diagf(format string, args ...interface{}) {
	if s := streams.Load(); s != nil && s.diag != nil {
		s.diag.Printf(format, args...)
	}
}

func tracef(format string, args ...interface{}) {
	if s := streams.Load(); s != nil && s.trace != nil {
		s.trace.Printf(format, args...)
	}
}
