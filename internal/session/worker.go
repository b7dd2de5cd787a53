package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/rickgao/nsmux/internal/namespace"
	"github.com/rickgao/nsmux/internal/queue"
)

// Worker is one running instance of a namespace handler. It implements
// namespace.Conn.
type Worker struct {
	session *Session
	desc    *descriptor
	ctx     context.Context
	logger  *slog.Logger
}

var _ namespace.Conn = (*Worker)(nil)

func newWorker(s *Session, d *descriptor, ctx context.Context) *Worker {
	return &Worker{
		session: s,
		desc:    d,
		ctx:     ctx,
		logger:  s.logger.With("namespace", d.name),
	}
}

// Receive returns the next value routed to this namespace, in arrival order.
func (w *Worker) Receive(ctx context.Context) (json.RawMessage, error) {
	if ctx == nil {
		ctx = w.ctx
	}
	if ctx != w.ctx {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(w.ctx, cancel)
		defer stop()
	}

	v, err := w.desc.mailbox.ReceiveContext(ctx)
	if err != nil {
		if errors.Is(err, queue.ErrClosed) || w.ctx.Err() != nil {
			return nil, ErrSessionClosed
		}
		return nil, err
	}

	w.desc.delivered.Add(1)
	return v, nil
}

// Send serializes v as JSON and queues it on the session's outbound funnel.
// A json.RawMessage or []byte is sent as is.
func (w *Worker) Send(v any) error {
	var frame []byte
	switch val := v.(type) {
	case json.RawMessage:
		frame = append([]byte(nil), val...)
	case []byte:
		frame = append([]byte(nil), val...)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal outbound value: %w", err)
		}
		frame = data
	}

	if w.ctx.Err() != nil {
		return ErrSessionClosed
	}
	if !w.session.funnel.push(w.ctx, frame) {
		return ErrSessionClosed
	}
	if !w.session.signalOutbound(w.ctx) {
		return ErrSessionClosed
	}
	return nil
}

// Namespace returns the namespace this worker serves.
func (w *Worker) Namespace() namespace.Name {
	return namespace.Name(w.desc.name)
}

// SessionID returns the owning session's identifier.
func (w *Worker) SessionID() string {
	return w.session.id
}

// Logger returns a logger tagged with session and namespace.
func (w *Worker) Logger() *slog.Logger {
	return w.logger
}

// runWorker runs the handler and reports its result to the dispatcher.
func (s *Session) runWorker(ctx context.Context, d *descriptor, w *Worker) {
	defer s.workers.Done()

	err := w.invoke(ctx)
	if err != nil {
		w.logger.Warn("namespace worker failed", "error", err)
	} else {
		w.logger.Debug("namespace worker finished")
	}

	s.post(s.ctx, event{kind: eventFinished, desc: d, err: err})
}

// invoke calls the handler, converting a panic into a WorkerFailure. Errors
// caused by the session shutting down are not failures.
func (w *Worker) invoke(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &WorkerFailure{
				Namespace: w.desc.name,
				Err:       fmt.Errorf("panic: %v", r),
				Panic:     r,
				Stack:     debug.Stack(),
			}
		}
	}()

	herr := w.desc.handler(ctx, w)
	switch {
	case herr == nil:
		return nil
	case errors.Is(herr, ErrSessionClosed),
		errors.Is(herr, context.Canceled) && ctx.Err() != nil:
		return nil
	default:
		return &WorkerFailure{Namespace: w.desc.name, Err: herr}
	}
}
