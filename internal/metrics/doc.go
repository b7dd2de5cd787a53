// Package metrics exposes session activity as Prometheus metrics.
//
// Metrics:
//   - nsmux_sessions_active / nsmux_sessions_total
//   - nsmux_workers_active / nsmux_workers_spawned_total
//   - nsmux_frames_total{direction}
//   - nsmux_frames_dropped_total{reason}
//   - nsmux_worker_failures_total{namespace}
package metrics
