package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// acceptServer runs handler on every accepted transport.
func acceptServer(t *testing.T, opts Options, handler func(*WSTransport)) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr, err := Accept(w, r, opts, nil)
		if err != nil {
			t.Logf("accept error: %v", err)
			return
		}
		defer tr.Close()
		handler(tr)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

var errReceiveTimeout = errors.New("timeout waiting for frame")

// receiveOne polls and drains a single frame.
func receiveOne(t *testing.T, tr Transport) ([]byte, error) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, ok, err := tr.TryReceive()
		if err != nil {
			return nil, err
		}
		if ok {
			return data, nil
		}
		if _, err := tr.PollReadable(context.Background(), 50*time.Millisecond); err != nil {
			return nil, err
		}
	}
	return nil, errReceiveTimeout
}

func TestAccept_RejectsPlainRequest(t *testing.T) {
	errCh := make(chan error, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := Accept(w, r, DefaultOptions(), nil)
		errCh <- err
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	gotErr := <-errCh
	var hsErr *HandshakeError
	if !errors.As(gotErr, &hsErr) {
		t.Fatalf("error = %v, want *HandshakeError", gotErr)
	}
	if !errors.Is(gotErr, ErrNotUpgrade) {
		t.Errorf("error = %v, want ErrNotUpgrade", gotErr)
	}
}

func TestTransport_RoundTrip(t *testing.T) {
	server := acceptServer(t, DefaultOptions(), func(tr *WSTransport) {
		for {
			data, err := receiveOne(t, tr)
			if err != nil {
				return
			}
			if err := tr.Send(data); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client, err := Dial(context.Background(), wsURL(server), nil, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	for _, msg := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		if err := client.Send([]byte(msg)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		got, err := receiveOne(t, client)
		if err != nil {
			t.Fatalf("receive failed: %v", err)
		}
		if string(got) != msg {
			t.Errorf("got %q, want %q", got, msg)
		}
	}
}

func TestTransport_TryReceiveEmpty(t *testing.T) {
	server := acceptServer(t, DefaultOptions(), func(tr *WSTransport) {
		time.Sleep(200 * time.Millisecond)
	})
	defer server.Close()

	client, err := Dial(context.Background(), wsURL(server), nil, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	data, ok, err := client.TryReceive()
	if data != nil || ok || err != nil {
		t.Errorf("TryReceive() = %v, %v, %v; want nil, false, nil", data, ok, err)
	}

	readable, err := client.PollReadable(context.Background(), 10*time.Millisecond)
	if readable || err != nil {
		t.Errorf("PollReadable() = %v, %v; want false, nil", readable, err)
	}
}

func TestTransport_PeerCloseIsEOF(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`"last"`))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		conn.Close()
	}))
	defer server.Close()

	client, err := Dial(context.Background(), wsURL(server), nil, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	data, err := receiveOne(t, client)
	if err != nil {
		t.Fatalf("expected queued frame before EOF, got %v", err)
	}
	if string(data) != `"last"` {
		t.Errorf("got %q, want %q", data, `"last"`)
	}

	_, err = receiveOne(t, client)
	if !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestTransport_SendAfterClose(t *testing.T) {
	server := acceptServer(t, DefaultOptions(), func(tr *WSTransport) {
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	client, err := Dial(context.Background(), wsURL(server), nil, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := client.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if err := client.Ping(); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping after Close = %v, want ErrClosed", err)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "wildcard", allowed: []string{"*"}, origin: "https://evil.example", want: true},
		{name: "listed", allowed: []string{"https://app.example"}, origin: "https://APP.example", want: true},
		{name: "unlisted", allowed: []string{"https://app.example"}, origin: "https://other.example", want: false},
		{name: "no origin header", allowed: []string{"https://app.example"}, origin: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := originChecker(tt.allowed)
			r := httptest.NewRequest(http.MethodGet, "/websockets", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := check(r); got != tt.want {
				t.Errorf("check(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}

	if originChecker(nil) != nil {
		t.Error("empty allow-list should defer to the upgrader default")
	}
}

func TestTransport_DataFramesKeepReadSideAlive(t *testing.T) {
	opts := DefaultOptions()
	opts.PongTimeout = 300 * time.Millisecond

	type result struct {
		frames int
		err    error
	}
	resultCh := make(chan result, 1)

	// The server never pings, so only data frames can extend its deadline.
	server := acceptServer(t, opts, func(tr *WSTransport) {
		var res result
		for {
			if _, err := receiveOne(t, tr); err != nil {
				res.err = err
				break
			}
			res.frames++
		}
		resultCh <- res
	})
	defer server.Close()

	client, err := Dial(context.Background(), wsURL(server), nil, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	const sends = 18
	for i := 0; i < sends; i++ {
		if err := client.Send([]byte(`{"n":1}`)); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	client.Close()

	select {
	case res := <-resultCh:
		if !errors.Is(res.err, io.EOF) {
			t.Errorf("server read error = %v, want io.EOF", res.err)
		}
		if res.frames != sends {
			t.Errorf("server received %d frames, want %d", res.frames, sends)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not observe close")
	}
}
