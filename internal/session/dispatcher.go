package session

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/nsmux/internal/observe"
	"github.com/rickgao/nsmux/internal/transport"
)

// dispatchLoop is the only code that reads from or writes to the transport.
func (s *Session) dispatchLoop(ctx context.Context) error {
	// Ticks ignore traffic, so a peer that only receives still sees pings.
	keepalive := time.NewTicker(s.cfg.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-s.events:
			switch ev.kind {
			case eventInbound:
				if err := s.drainInbound(); err != nil {
					return err
				}
			case eventOutbound:
				if err := s.flushOutbound(); err != nil {
					return err
				}
			case eventFinished:
				s.reap(ev.desc, ev.err)
			}

		case <-keepalive.C:
			s.keepalive()
		}
	}
}

// drainInbound routes every frame the transport has queued.
func (s *Session) drainInbound() error {
	for {
		data, ok, err := s.transport.TryReceive()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		s.route(data)
	}
}

// route delivers one frame to its namespace mailbox, spawning the worker if idle.
func (s *Session) route(data []byte) {
	s.framesIn.Add(1)

	env, err := ParseEnvelope(data)
	if err != nil {
		s.protocolErrors.Add(1)
		s.record(observe.KindProtocolDrop, "", err)
		return
	}

	handler, ok := s.table.Lookup(env.Namespace)
	if !ok {
		s.routingErrors.Add(1)
		s.record(observe.KindRoutingDrop, env.Namespace, &RoutingError{Namespace: env.Namespace})
		return
	}

	s.record(observe.KindFrameIn, env.Namespace, nil)

	d := s.registry.getOrCreate(env.Namespace, handler, s.cfg.MailboxSize)
	d.mailbox.Send(env.Value)

	if !d.running {
		s.spawn(d)
	}
}

// flushOutbound writes the whole funnel to the transport in FIFO order.
func (s *Session) flushOutbound() error {
	s.outboundPending.Store(false)

	if dropped := s.funnel.dropped(); dropped > s.funnelDropped.Load() {
		n := dropped - s.funnelDropped.Swap(dropped)
		for i := int64(0); i < n; i++ {
			s.record(observe.KindFunnelDrop, "", nil)
		}
		s.logger.Warn("outbound funnel full, dropped oldest frames", "dropped", n)
	}

	for _, frame := range s.funnel.drain() {
		if err := s.transport.Send(frame); err != nil {
			return err
		}
		s.framesOut.Add(1)
		s.record(observe.KindFrameOut, "", nil)
	}
	return nil
}

// spawn starts the worker goroutine for an idle descriptor.
func (s *Session) spawn(d *descriptor) {
	wctx, cancel := context.WithCancel(s.ctx)
	d.running = true
	d.cancel = cancel

	w := newWorker(s, d, wctx)

	s.workersSpawned.Add(1)
	s.activeWorkers.Add(1)
	s.record(observe.KindWorkerStarted, d.name, nil)

	s.workers.Add(1)
	go s.runWorker(wctx, d, w)
}

// reap removes a finished worker's descriptor. Values that reached the mailbox
// after the handler stopped receiving go to the next worker for the namespace.
func (s *Session) reap(d *descriptor, err error) {
	if !s.registry.remove(d) {
		return
	}

	d.running = false
	d.cancel()
	d.cancel = nil
	s.activeWorkers.Add(-1)

	var failure *WorkerFailure
	if errors.As(err, &failure) {
		s.workerFailures.Add(1)
		s.record(observe.KindWorkerFailed, d.name, failure)
		if failure.Stack != nil {
			s.logger.Debug("worker panic stack", "namespace", d.name, "stack", string(failure.Stack))
		}
	} else {
		s.record(observe.KindWorkerFinished, d.name, nil)
	}

	pending := d.mailbox.Len()
	if pending == 0 {
		return
	}

	next := s.registry.adopt(d.name, d.handler, d.mailbox)

	// A handler that returns without ever receiving would respawn forever on
	// its own leftovers. Park them; the next routed frame starts a worker.
	if d.delivered.Load() == 0 {
		s.logger.Debug("parking undelivered values until next frame",
			"namespace", d.name,
			"pending", pending,
		)
		return
	}

	s.spawn(next)
}

// teardown cancels every live worker. It does not wait for them.
func (s *Session) teardown() {
	for _, d := range s.registry.running() {
		d.cancel()
		d.mailbox.Close()
	}
	s.funnel.close()
}

func (s *Session) keepalive() {
	pinger, ok := s.transport.(transport.Pinger)
	if !ok {
		return
	}
	if err := pinger.Ping(); err != nil {
		s.logger.Debug("keepalive ping failed", "error", err)
	}
}
