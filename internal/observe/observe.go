package observe

import (
	"log/slog"
	"time"
)

// Kind classifies a session event.
type Kind string

const (
	KindSessionOpened  Kind = "session_opened"
	KindSessionClosed  Kind = "session_closed"
	KindWorkerStarted  Kind = "worker_started"
	KindWorkerFinished Kind = "worker_finished"
	KindWorkerFailed   Kind = "worker_failed"
	KindProtocolDrop   Kind = "frame_dropped_protocol"
	KindRoutingDrop    Kind = "frame_dropped_routing"
	KindFunnelDrop     Kind = "frame_dropped_funnel"
	KindFrameIn        Kind = "frame_in"
	KindFrameOut       Kind = "frame_out"
)

// Event is one observable thing that happened inside a session.
type Event struct {
	Kind      Kind
	SessionID string
	Namespace string // Empty for session-level events
	Err       error
	At        time.Time
}

// Sink receives session events. Record is called from the dispatcher and
// worker goroutines and must not block.
type Sink interface {
	Record(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

// Record calls f(ev).
func (f SinkFunc) Record(ev Event) { f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

type multi []Sink

// Multi fans each event out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Record(ev Event) {
	for _, s := range m {
		s.Record(ev)
	}
}

// LogSink writes failures and drops to a slog logger. Per-frame events are
// logged at debug level only.
type LogSink struct {
	Logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{Logger: logger}
}

// Record logs ev.
func (s *LogSink) Record(ev Event) {
	attrs := []any{"session_id", ev.SessionID}
	if ev.Namespace != "" {
		attrs = append(attrs, "namespace", ev.Namespace)
	}
	if ev.Err != nil {
		attrs = append(attrs, "error", ev.Err)
	}

	switch ev.Kind {
	case KindWorkerFailed:
		s.Logger.Error("namespace worker failed", attrs...)
	case KindProtocolDrop, KindRoutingDrop, KindFunnelDrop:
		s.Logger.Warn("frame dropped", append(attrs, "reason", string(ev.Kind))...)
	case KindSessionOpened, KindSessionClosed:
		s.Logger.Info(string(ev.Kind), attrs...)
	case KindFrameIn, KindFrameOut:
		// too chatty for anything above debug
		s.Logger.Debug(string(ev.Kind), attrs...)
	default:
		s.Logger.Debug(string(ev.Kind), attrs...)
	}
}
