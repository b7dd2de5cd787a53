package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/rickgao/nsmux/internal/namespace"
	"github.com/rickgao/nsmux/internal/observe"
	"github.com/rickgao/nsmux/internal/session"
	"github.com/rickgao/nsmux/internal/transport"
	"github.com/rickgao/nsmux/internal/version"
)

// Errors
var (
	ErrShuttingDown = errors.New("server shutting down")
)

// HealthChecker reports the health of a dependency. *pgxpool.Pool satisfies it.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	InstanceID     string
	Path           string // Upgrade route
	MetricsPath    string
	MetricsHandler http.Handler // nil = no metrics route
	Transport      transport.Options
	Session        session.Config
	Checks         map[string]HealthChecker // Named dependencies reported by /health
}

// Server accepts websocket connections and runs a session for each.
type Server struct {
	opts   Options
	table  namespace.Table
	sink   observe.Sink
	logger *slog.Logger
	router *mux.Router

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Active sessions
	mu       sync.Mutex
	sessions map[string]*session.Session
	closed   bool
}

// New creates a Server serving the namespaces in table.
func New(opts Options, table namespace.Table, sink observe.Sink, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = observe.Discard
	}
	if opts.Path == "" {
		opts.Path = "/websockets"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:     opts,
		table:    table,
		sink:     sink,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session.Session),
	}

	r := mux.NewRouter()
	r.HandleFunc(opts.Path, s.serveWebsocket).Methods(http.MethodGet)
	r.HandleFunc("/health", s.serveHealth).Methods(http.MethodGet)
	r.HandleFunc("/debug/sessions", s.serveSessions).Methods(http.MethodGet)
	if opts.MetricsHandler != nil && opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, opts.MetricsHandler).Methods(http.MethodGet)
	}
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ActiveSessions returns the number of running sessions.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown refuses new sessions, cancels the running ones, and waits for
// them to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	active := len(s.sessions)
	s.mu.Unlock()

	s.logger.Info("stopping sessions", "active", active)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("session shutdown timed out", "remaining", s.ActiveSessions())
		return ctx.Err()
	}
}

// serveWebsocket upgrades the request and runs its session until it ends.
func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, ErrShuttingDown.Error(), http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	tr, err := transport.Accept(w, r, s.opts.Transport, s.logger)
	if err != nil {
		s.logger.Debug("websocket handshake rejected", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := session.New(s.opts.Session, tr, s.table, s.sink, s.logger.With("remote", tr.RemoteAddr()))
	s.track(sess)
	defer s.untrack(sess)

	if err := sess.Run(s.ctx); err != nil {
		s.logger.Warn("session ended with transport error", "session_id", sess.ID(), "error", err)
	}
}

func (s *Server) track(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID()] = sess
}

func (s *Server) untrack(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.ID())
}

// serveHealth reports liveness plus the state of every configured check.
func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status         string         `json:"status"`
		Instance       string         `json:"instance,omitempty"`
		Version        string         `json:"version"`
		ActiveSessions int            `json:"active_sessions"`
		Namespaces     []string       `json:"namespaces"`
		Components     map[string]any `json:"components"`
	}{
		Status:         "healthy",
		Instance:       s.opts.InstanceID,
		Version:        version.Version,
		ActiveSessions: s.ActiveSessions(),
		Components:     make(map[string]any),
	}

	for _, name := range s.table.Names() {
		health.Namespaces = append(health.Namespaces, string(name))
	}

	for name, check := range s.opts.Checks {
		if err := check.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components[name] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components[name] = "connected"
		}
	}

	s.mu.Lock()
	if s.closed {
		health.Status = "shutting_down"
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if health.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

// sessionInfo is one row of /debug/sessions.
type sessionInfo struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	FramesIn       int64     `json:"frames_in"`
	FramesOut      int64     `json:"frames_out"`
	ActiveWorkers  int64     `json:"active_workers"`
	WorkersSpawned int64     `json:"workers_spawned"`
	WorkerFailures int64     `json:"worker_failures"`
	Dropped        int64     `json:"dropped"`
}

func (s *Server) serveSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	infos := make([]sessionInfo, 0, len(s.sessions))
	for id, sess := range s.sessions {
		st := sess.Stats()
		infos = append(infos, sessionInfo{
			ID:             id,
			StartedAt:      st.StartedAt,
			FramesIn:       st.FramesIn,
			FramesOut:      st.FramesOut,
			ActiveWorkers:  st.ActiveWorkers,
			WorkersSpawned: st.WorkersSpawned,
			WorkerFailures: st.WorkerFailures,
			Dropped:        st.ProtocolErrors + st.RoutingErrors + st.FunnelDropped,
		})
	}
	s.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"count":    len(infos),
		"sessions": infos,
	})
}
