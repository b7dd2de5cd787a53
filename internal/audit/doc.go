// Package audit persists session lifecycle events to PostgreSQL.
//
// Writer implements observe.Sink. Record never blocks: events are queued in a
// bounded buffer (oldest dropped when full) and written in batches by a
// background consumer on size or interval. The table is append-only.
package audit
