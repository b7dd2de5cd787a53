package session

import (
	"time"

	"github.com/rickgao/nsmux/internal/queue"
)

// Config configures a session.
type Config struct {
	PollTimeout       time.Duration        // Upper bound on one readability wait
	KeepaliveInterval time.Duration        // Period of keepalive pings, independent of traffic
	MailboxSize       int                  // Initial capacity of each namespace mailbox
	EventBufferSize   int                  // Capacity of the dispatcher event channel
	FunnelCapacity    int                  // Max queued outbound frames (0 = unbounded)
	FunnelOverflow    queue.OverflowPolicy // Policy when FunnelCapacity is reached
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollTimeout:       3 * time.Second,
		KeepaliveInterval: 15 * time.Second,
		MailboxSize:       16,
		EventBufferSize:   64,
		FunnelCapacity:    0,
		FunnelOverflow:    queue.OverflowBlock,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PollTimeout <= 0 {
		c.PollTimeout = def.PollTimeout
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = def.KeepaliveInterval
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = def.MailboxSize
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = def.EventBufferSize
	}
	if c.FunnelOverflow == "" {
		c.FunnelOverflow = def.FunnelOverflow
	}
	return c
}

// Stats is a snapshot of session counters.
type Stats struct {
	FramesIn       int64
	FramesOut      int64
	ProtocolErrors int64
	RoutingErrors  int64
	WorkersSpawned int64
	WorkerFailures int64
	FunnelDropped  int64
	ActiveWorkers  int64
	StartedAt      time.Time
}

// eventKind tags what woke the dispatcher.
type eventKind int

const (
	eventInbound  eventKind = iota // transport has data
	eventOutbound                  // funnel has frames
	eventFinished                  // a worker returned
)

func (k eventKind) String() string {
	switch k {
	case eventInbound:
		return "inbound"
	case eventOutbound:
		return "outbound"
	case eventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// event is the single wakeup vocabulary of the dispatcher.
type event struct {
	kind eventKind
	desc *descriptor // eventFinished only
	err  error       // eventFinished only
}
