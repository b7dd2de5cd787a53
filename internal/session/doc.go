// Package session multiplexes independent namespace workers over a single
// websocket connection.
//
// Each Session runs one dispatcher goroutine that exclusively owns the
// transport and the namespace registry, one watcher goroutine that waits for
// readability, and at most one worker goroutine per active namespace.
// Inbound envelopes ({"namespace": ..., "value": ...}) are routed to the
// namespace mailbox in arrival order; a worker is spawned on first use and
// removed when its handler returns. Workers reply through a shared outbound
// funnel that the dispatcher writes in FIFO order.
//
// Wakeups reach the dispatcher over one tagged event channel, so a waiting
// dispatcher reacts immediately to inbound data, queued replies, and
// finished workers.
package session
