package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/nsmux/internal/queue"
)

// Transport is the capability a session dispatcher drives. Only one goroutine
// may call TryReceive and Send.
type Transport interface {
	// PollReadable blocks until inbound data (or a terminal error) is
	// available, timeout elapses, or ctx is done.
	PollReadable(ctx context.Context, timeout time.Duration) (bool, error)

	// TryReceive returns the next frame without blocking. ok is false with a
	// nil error when nothing is available. A non-nil error is terminal;
	// io.EOF marks an orderly close by the peer.
	TryReceive() (data []byte, ok bool, err error)

	// Send writes one frame.
	Send(data []byte) error

	// Close tears the connection down.
	Close() error
}

// Pinger is implemented by transports that support keepalive probes.
type Pinger interface {
	Ping() error
}

// Options configures a websocket transport.
type Options struct {
	ReadBufferSize    int
	WriteBufferSize   int
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration // Write deadline for frames and control messages
	PongTimeout       time.Duration // Max silence before the read side gives up (0 = never)
	MaxMessageSize    int64         // 0 = unlimited
	InboundBufferSize int           // Initial capacity of the inbound frame queue
	AllowedOrigins    []string      // Empty = same-origin check, "*" = any
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		PongTimeout:       60 * time.Second,
		MaxMessageSize:    1 << 20,
		InboundBufferSize: 64,
	}
}

// WSTransport is a Transport over a gorilla/websocket connection.
type WSTransport struct {
	opts   Options
	logger *slog.Logger
	conn   *websocket.Conn

	inbound  *queue.GrowableBuffer[[]byte]
	readable chan struct{} // 1-slot wakeup token
	failed   chan struct{} // closed when the read loop exits
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu      sync.RWMutex
	readErr error
	closed  bool
}

// Accept performs the server side of the handshake. On failure an HTTP error
// response has already been written and the error is a *HandshakeError.
func Accept(w http.ResponseWriter, r *http.Request, opts Options, logger *slog.Logger) (*WSTransport, error) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return nil, &HandshakeError{Reason: "missing upgrade token", Err: ErrNotUpgrade}
	}
	if r.Header.Get("Sec-Websocket-Key") == "" {
		http.Error(w, "missing websocket key", http.StatusBadRequest)
		return nil, &HandshakeError{Reason: "missing key", Err: ErrMissingKey}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:   opts.ReadBufferSize,
		WriteBufferSize:  opts.WriteBufferSize,
		HandshakeTimeout: opts.HandshakeTimeout,
		CheckOrigin:      originChecker(opts.AllowedOrigins),
	}

	// Upgrade replies to the client itself on failure.
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, &HandshakeError{Reason: "upgrade failed", Err: err}
	}

	return newWSTransport(conn, opts, logger), nil
}

// Dial opens a client-side transport to url.
func Dial(ctx context.Context, url string, header http.Header, opts Options, logger *slog.Logger) (*WSTransport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
		ReadBufferSize:   opts.ReadBufferSize,
		WriteBufferSize:  opts.WriteBufferSize,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, &HandshakeError{Reason: "dial " + url, Err: err}
	}

	return newWSTransport(conn, opts, logger), nil
}

func newWSTransport(conn *websocket.Conn, opts Options, logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}

	t := &WSTransport{
		opts:     opts,
		logger:   logger,
		conn:     conn,
		inbound:  queue.NewGrowableBuffer[[]byte](opts.InboundBufferSize),
		readable: make(chan struct{}, 1),
		failed:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	if opts.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.MaxMessageSize)
	}
	t.extendReadDeadline()

	conn.SetPongHandler(func(string) error {
		return t.extendReadDeadline()
	})

	// Any peer ping counts as liveness too; reply like the default handler.
	conn.SetPingHandler(func(data string) error {
		t.extendReadDeadline()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	go t.readLoop()

	return t
}

// PollReadable waits for the reader to signal new data.
func (t *WSTransport) PollReadable(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.readable:
		return true, nil
	case <-t.failed:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// TryReceive pops the next queued frame. Queued frames are delivered before a
// read error is reported.
func (t *WSTransport) TryReceive() ([]byte, bool, error) {
	if data, ok := t.inbound.TryReceive(); ok {
		return data, true, nil
	}

	select {
	case <-t.failed:
		// The reader may have queued a last frame before exiting.
		if data, ok := t.inbound.TryReceive(); ok {
			return data, true, nil
		}
		t.mu.RLock()
		defer t.mu.RUnlock()
		return nil, false, t.readErr
	default:
		return nil, false, nil
	}
}

// Send writes data as one text frame.
func (t *WSTransport) Send(data []byte) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrClosed
	}
	t.mu.RUnlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a keepalive probe.
func (t *WSTransport) Ping() error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	deadline := time.Now().Add(t.opts.WriteTimeout)
	return t.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline)
}

// Close sends a close frame and closes the socket. Safe to call twice.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.done)

	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return t.conn.Close()
}

// RemoteAddr returns the peer address.
func (t *WSTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// readLoop moves frames from the socket into the inbound queue. Every frame
// from the peer, data or control, proves it alive.
func (t *WSTransport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.fail(err)
			return
		}
		t.extendReadDeadline()

		t.inbound.Send(data)

		select {
		case t.readable <- struct{}{}:
		default:
		}
	}
}

func (t *WSTransport) extendReadDeadline() error {
	if t.opts.PongTimeout <= 0 {
		return nil
	}
	return t.conn.SetReadDeadline(time.Now().Add(t.opts.PongTimeout))
}

func (t *WSTransport) fail(err error) {
	select {
	case <-t.done:
		err = ErrClosed
	default:
		switch {
		case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
			err = io.EOF
		case isTimeout(err):
			err = ErrStaleConnection
		}
	}

	t.logger.Debug("websocket read loop stopped", "error", err)

	t.mu.Lock()
	t.readErr = err
	t.mu.Unlock()

	t.inbound.Close()
	close(t.failed)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil // gorilla's same-origin check
	}

	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimSpace(o))] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}
