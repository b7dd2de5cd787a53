package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/nsmux/internal/handlers"
	"github.com/rickgao/nsmux/internal/namespace"
	"github.com/rickgao/nsmux/internal/session"
	"github.com/rickgao/nsmux/internal/transport"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) Ping(ctx context.Context) error { return f(ctx) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()

	b := namespace.NewBindings()
	if err := handlers.Register(b); err != nil {
		t.Fatalf("register handlers: %v", err)
	}

	opts.Transport = transport.DefaultOptions()
	opts.Session = session.Config{PollTimeout: 50 * time.Millisecond}

	srv := New(opts, b.Table(), nil, testLogger())
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		ts.Close()
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server, path string) *transport.WSTransport {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	client, err := transport.Dial(context.Background(), url, nil, transport.DefaultOptions(), testLogger())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func receive(t *testing.T, tr transport.Transport) (string, error) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, ok, err := tr.TryReceive()
		if err != nil {
			return "", err
		}
		if ok {
			return string(data), nil
		}
		tr.PollReadable(context.Background(), 50*time.Millisecond)
	}
	return "", errors.New("timeout waiting for frame")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestServer_EchoOverWebsocket(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	client := dial(t, ts, "/websockets")

	for _, frame := range []string{
		`{"namespace":"echo","value":1}`,
		`{"namespace":"echo","value":2}`,
	} {
		if err := client.Send([]byte(frame)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	for _, want := range []string{"1", "2"} {
		got, err := receive(t, client)
		if err != nil {
			t.Fatalf("receive failed: %v", err)
		}
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}

	if n := srv.ActiveSessions(); n != 1 {
		t.Errorf("ActiveSessions() = %d, want 1", n)
	}

	client.Close()
	waitFor(t, "session to end", func() bool { return srv.ActiveSessions() == 0 })
}

func TestServer_CountdownRespawns(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	client := dial(t, ts, "/websockets")

	client.Send([]byte(`{"namespace":"countdown","value":2}`))
	client.Send([]byte(`{"namespace":"countdown","value":1}`))

	var got []string
	for i := 0; i < 5; i++ {
		frame, err := receive(t, client)
		if err != nil {
			t.Fatalf("receive %d failed: %v", i, err)
		}
		got = append(got, frame)
	}

	want := []string{"2", "1", "0", "1", "0"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frames = %v, want %v", got, want)
		}
	}
}

func TestServer_RejectsPlainRequest(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/websockets")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_CustomPath(t *testing.T) {
	_, ts := newTestServer(t, Options{Path: "/mux"})
	client := dial(t, ts, "/mux")

	client.Send([]byte(`{"namespace":"echo","value":"hi"}`))
	got, err := receive(t, client)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if got != `"hi"` {
		t.Errorf("got %q, want %q", got, `"hi"`)
	}
}

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthChecker
		wantStatus int
		wantHealth string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantHealth: "healthy",
		},
		{
			name:       "check passes",
			checks:     map[string]HealthChecker{"audit_db": checkFunc(func(context.Context) error { return nil })},
			wantStatus: http.StatusOK,
			wantHealth: "healthy",
		},
		{
			name:       "check fails",
			checks:     map[string]HealthChecker{"audit_db": checkFunc(func(context.Context) error { return errors.New("refused") })},
			wantStatus: http.StatusServiceUnavailable,
			wantHealth: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestServer(t, Options{InstanceID: "test", Checks: tt.checks})

			resp, err := http.Get(ts.URL + "/health")
			if err != nil {
				t.Fatalf("GET failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			var body struct {
				Status     string   `json:"status"`
				Instance   string   `json:"instance"`
				Namespaces []string `json:"namespaces"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode health: %v", err)
			}
			if body.Status != tt.wantHealth {
				t.Errorf("status field = %q, want %q", body.Status, tt.wantHealth)
			}
			if body.Instance != "test" {
				t.Errorf("instance = %q, want test", body.Instance)
			}
			if len(body.Namespaces) != 2 {
				t.Errorf("namespaces = %v, want countdown and echo", body.Namespaces)
			}
		})
	}
}

func TestServer_DebugSessions(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	client := dial(t, ts, "/websockets")
	client.Send([]byte(`{"namespace":"echo","value":1}`))
	if _, err := receive(t, client); err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	waitFor(t, "session tracked", func() bool { return srv.ActiveSessions() == 1 })

	var body struct {
		Count    int           `json:"count"`
		Sessions []sessionInfo `json:"sessions"`
	}
	fetch := func() bool {
		resp, err := http.Get(ts.URL + "/debug/sessions")
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return len(body.Sessions) == 1 && body.Sessions[0].FramesOut == 1
	}

	// FramesOut is counted after the write reaches the socket.
	waitFor(t, "session counters", fetch)

	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}
	if body.Sessions[0].FramesIn != 1 {
		t.Errorf("frames_in = %d, want 1", body.Sessions[0].FramesIn)
	}
}

func TestServer_MetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "nsmux_test 1\n")
	})
	_, ts := newTestServer(t, Options{MetricsPath: "/metrics", MetricsHandler: metrics})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "nsmux_test") {
		t.Errorf("metrics body = %q", body)
	}
}

func TestServer_ShutdownClosesSessions(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	client := dial(t, ts, "/websockets")

	client.Send([]byte(`{"namespace":"echo","value":1}`))
	if _, err := receive(t, client); err != nil {
		t.Fatalf("receive failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if n := srv.ActiveSessions(); n != 0 {
		t.Errorf("ActiveSessions() after shutdown = %d, want 0", n)
	}

	if _, err := receive(t, client); !errors.Is(err, io.EOF) {
		t.Errorf("client receive after shutdown = %v, want io.EOF", err)
	}

	resp, err := http.Get(ts.URL + "/websockets")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status after shutdown = %d, want 503", resp.StatusCode)
	}
}
