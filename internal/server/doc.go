// Package server exposes namespace multiplexing over HTTP.
//
// Routes:
//   - <path> (default /websockets): websocket upgrade, one session per connection
//   - /health: JSON health report
//   - /debug/sessions: per-session counters
//   - <metrics path>: Prometheus exposition, when configured
package server
