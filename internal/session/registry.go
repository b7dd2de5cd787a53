package session

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/rickgao/nsmux/internal/namespace"
	"github.com/rickgao/nsmux/internal/queue"
)

// descriptor is the registry entry of one namespace within a session.
// Only the dispatcher goroutine touches running and cancel.
type descriptor struct {
	name    string
	handler namespace.Handler
	mailbox *queue.GrowableBuffer[json.RawMessage]

	running bool
	cancel  context.CancelFunc // non-nil iff running

	delivered atomic.Int64 // values handed out by Receive
}

// registry maps namespace names to live descriptors. Not safe for concurrent
// use; the dispatcher owns it.
type registry struct {
	entries map[string]*descriptor
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*descriptor)}
}

// getOrCreate returns the live descriptor for name, creating an idle one with
// an empty mailbox if none exists.
func (r *registry) getOrCreate(name string, h namespace.Handler, mailboxSize int) *descriptor {
	if d, ok := r.entries[name]; ok {
		return d
	}
	return r.adopt(name, h, queue.NewGrowableBuffer[json.RawMessage](mailboxSize))
}

// adopt installs a fresh descriptor that takes over an existing mailbox.
func (r *registry) adopt(name string, h namespace.Handler, mailbox *queue.GrowableBuffer[json.RawMessage]) *descriptor {
	d := &descriptor{
		name:    name,
		handler: h,
		mailbox: mailbox,
	}
	r.entries[name] = d
	return d
}

// remove deletes d if it is still the live entry for its name.
func (r *registry) remove(d *descriptor) bool {
	if cur, ok := r.entries[d.name]; !ok || cur != d {
		return false
	}
	delete(r.entries, d.name)
	return true
}

// running returns every descriptor with a live worker.
func (r *registry) running() []*descriptor {
	out := make([]*descriptor, 0, len(r.entries))
	for _, d := range r.entries {
		if d.running {
			out = append(out, d)
		}
	}
	return out
}
