// Package queue provides the FIFO used for namespace mailboxes, the outbound
// funnel, and the transport's inbound frame queue.
//
// GrowableBuffer never rejects writes unless it was built with a limit; the
// ring doubles at 70% occupancy. Receivers can block with a context.
package queue
