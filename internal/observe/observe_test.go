package observe

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestMulti_FansOutAndSkipsNil(t *testing.T) {
	var a, b []Kind
	sink := Multi(
		SinkFunc(func(ev Event) { a = append(a, ev.Kind) }),
		nil,
		SinkFunc(func(ev Event) { b = append(b, ev.Kind) }),
	)

	sink.Record(Event{Kind: KindWorkerStarted})
	sink.Record(Event{Kind: KindWorkerFinished})

	for name, got := range map[string][]Kind{"a": a, "b": b} {
		if len(got) != 2 || got[0] != KindWorkerStarted || got[1] != KindWorkerFinished {
			t.Errorf("sink %s saw %v", name, got)
		}
	}
}

func TestLogSink_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	sink := NewLogSink(logger)

	sink.Record(Event{Kind: KindFrameIn, SessionID: "s1"})
	if buf.Len() != 0 {
		t.Errorf("frame_in should not be logged at warn level, got %q", buf.String())
	}

	sink.Record(Event{Kind: KindWorkerFailed, SessionID: "s1", Namespace: "echo", Err: errors.New("boom")})
	out := buf.String()
	for _, want := range []string{"level=ERROR", "namespace=echo", "error=boom", "session_id=s1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}

	buf.Reset()
	sink.Record(Event{Kind: KindRoutingDrop, SessionID: "s1", Namespace: "nope"})
	if !strings.Contains(buf.String(), "reason=frame_dropped_routing") {
		t.Errorf("routing drop not logged with reason: %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	// must not panic
	Discard.Record(Event{Kind: KindSessionClosed})
}
