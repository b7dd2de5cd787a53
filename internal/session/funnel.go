package session

import (
	"context"

	"github.com/rickgao/nsmux/internal/queue"
)

// funnel is the outbound FIFO. Workers push; only the dispatcher drains.
type funnel struct {
	buf *queue.GrowableBuffer[[]byte]
}

func newFunnel(cfg Config) *funnel {
	initial := cfg.EventBufferSize
	if cfg.FunnelCapacity > 0 && cfg.FunnelCapacity < initial {
		initial = cfg.FunnelCapacity
	}
	return &funnel{
		buf: queue.NewBoundedBuffer[[]byte](initial, cfg.FunnelCapacity, cfg.FunnelOverflow),
	}
}

// push appends frame. It only blocks for a bounded funnel with the block policy.
func (f *funnel) push(ctx context.Context, frame []byte) bool {
	return f.buf.SendContext(ctx, frame)
}

// drain removes every queued frame in enqueue order.
func (f *funnel) drain() [][]byte {
	return f.buf.DrainTo(0)
}

func (f *funnel) dropped() int64 {
	return f.buf.Stats().Dropped
}

func (f *funnel) close() {
	f.buf.Close()
}
