package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/nsmux/internal/namespace"
	"github.com/rickgao/nsmux/internal/observe"
	"github.com/rickgao/nsmux/internal/transport"
)

// Session multiplexes namespace workers over one transport. Create one per
// accepted connection and call Run exactly once.
type Session struct {
	id     string
	cfg    Config
	logger *slog.Logger
	sink   observe.Sink

	transport transport.Transport
	table     namespace.Table

	// Dispatcher-owned state
	registry *registry
	funnel   *funnel

	// Wakeups from watcher and workers
	events          chan event
	outboundPending atomic.Bool

	ctx     context.Context // set by Run; parent of every worker context
	started atomic.Bool

	// Stats
	framesIn       atomic.Int64
	framesOut      atomic.Int64
	protocolErrors atomic.Int64
	routingErrors  atomic.Int64
	workersSpawned atomic.Int64
	workerFailures atomic.Int64
	funnelDropped  atomic.Int64
	activeWorkers  atomic.Int64
	startedAt      time.Time

	workers sync.WaitGroup
}

// New creates a session bound to an already handshaken transport.
func New(cfg Config, tr transport.Transport, table namespace.Table, sink observe.Sink, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = observe.Discard
	}

	cfg = cfg.withDefaults()
	id := uuid.NewString()

	return &Session{
		id:        id,
		cfg:       cfg,
		logger:    logger.With("session_id", id),
		sink:      sink,
		transport: tr,
		table:     table,
		registry:  newRegistry(),
		funnel:    newFunnel(cfg),
		events:    make(chan event, cfg.EventBufferSize),
		startedAt: time.Now(),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Stats returns current counters. Safe to call from any goroutine.
func (s *Session) Stats() Stats {
	return Stats{
		FramesIn:       s.framesIn.Load(),
		FramesOut:      s.framesOut.Load(),
		ProtocolErrors: s.protocolErrors.Load(),
		RoutingErrors:  s.routingErrors.Load(),
		WorkersSpawned: s.workersSpawned.Load(),
		WorkerFailures: s.workerFailures.Load(),
		FunnelDropped:  s.funnelDropped.Load(),
		ActiveWorkers:  s.activeWorkers.Load(),
		StartedAt:      s.startedAt,
	}
}

// Run drives the session until the peer goes away, the transport fails, or
// ctx is cancelled. It closes the transport before returning. Peer close and
// cancellation return nil; other transport failures are returned wrapped.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.ctx = ctx

	s.record(observe.KindSessionOpened, "", nil)
	s.logger.Info("session started", "namespaces", s.table.Len())

	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		s.watch(ctx)
	}()

	err := s.dispatchLoop(ctx)

	// Explicit shutdown: give queued replies one chance to reach the peer.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ferr := s.flushOutbound(); ferr != nil {
			s.logger.Debug("final flush failed", "error", ferr)
		}
	}

	s.teardown()
	cancel()
	<-watcherDone

	if cerr := s.transport.Close(); cerr != nil {
		s.logger.Debug("transport close", "error", cerr)
	}

	result := classify(err)
	s.record(observe.KindSessionClosed, "", result)

	stats := s.Stats()
	s.logger.Info("session closed",
		"duration", time.Since(s.startedAt),
		"frames_in", stats.FramesIn,
		"frames_out", stats.FramesOut,
		"workers_spawned", stats.WorkersSpawned,
		"worker_failures", stats.WorkerFailures,
		"error", result,
	)

	return result
}

// Wait blocks until every worker goroutine has exited or ctx is done.
// Run does not wait for workers itself.
func (s *Session) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classify maps the dispatcher's exit reason onto Run's contract.
func classify(err error) error {
	switch {
	case err == nil,
		errors.Is(err, io.EOF),
		errors.Is(err, transport.ErrClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return nil
	default:
		return fmt.Errorf("session transport: %w", err)
	}
}

// post delivers ev to the dispatcher unless ctx ends first.
func (s *Session) post(ctx context.Context, ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// signalOutbound wakes the dispatcher for the funnel, coalescing wakeups that
// arrive before it drains.
func (s *Session) signalOutbound(ctx context.Context) bool {
	if !s.outboundPending.CompareAndSwap(false, true) {
		return true
	}
	if !s.post(ctx, event{kind: eventOutbound}) {
		s.outboundPending.Store(false)
		return false
	}
	return true
}

func (s *Session) record(kind observe.Kind, ns string, err error) {
	s.sink.Record(observe.Event{
		Kind:      kind,
		SessionID: s.id,
		Namespace: ns,
		Err:       err,
		At:        time.Now(),
	})
}
