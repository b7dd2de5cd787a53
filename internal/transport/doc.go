// Package transport adapts a gorilla/websocket connection to the four
// primitives the session dispatcher is built on: handshake, poll-readable,
// receive-nonblocking and send.
//
// A background reader moves frames off the socket into a queue; the
// dispatcher only ever observes them through PollReadable and TryReceive.
package transport
