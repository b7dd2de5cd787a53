package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/nsmux/internal/namespace"
	"github.com/rickgao/nsmux/internal/transport"
)

func TestSession_BusyWebsocketStaysOpen(t *testing.T) {
	b := namespace.NewBindings()
	b.MustRegister("echo", echoHandler)
	table := b.Table()

	opts := transport.DefaultOptions()
	opts.PongTimeout = 600 * time.Millisecond

	cfg := Config{
		PollTimeout:       50 * time.Millisecond,
		KeepaliveInterval: 200 * time.Millisecond,
	}

	runErr := make(chan error, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr, err := transport.Accept(w, r, opts, testLogger())
		if err != nil {
			t.Logf("accept error: %v", err)
			return
		}
		runErr <- New(cfg, tr, table, nil, testLogger()).Run(context.Background())
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, err := transport.Dial(context.Background(), url, nil, transport.DefaultOptions(), testLogger())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	// Steady traffic for well over PongTimeout.
	const sends = 30
	for i := 0; i < sends; i++ {
		if err := client.Send([]byte(envelope("echo", i))); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
		select {
		case err := <-runErr:
			t.Fatalf("busy session ended after %d frames: %v", i, err)
		case <-time.After(50 * time.Millisecond):
		}
	}

	received := 0
	deadline := time.Now().Add(2 * time.Second)
	for received < sends && time.Now().Before(deadline) {
		_, ok, err := client.TryReceive()
		if err != nil {
			t.Fatalf("client receive failed after %d replies: %v", received, err)
		}
		if ok {
			received++
			continue
		}
		client.PollReadable(context.Background(), 50*time.Millisecond)
	}
	if received != sends {
		t.Fatalf("received %d replies, want %d", received, sends)
	}

	client.Close()
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run() = %v, want nil after client close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after client close")
	}
}
