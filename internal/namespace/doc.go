// Package namespace holds the setup-time side of multiplexing: the binding of
// namespace names to handlers.
//
// Bindings are populated once at startup and frozen into a Table, which every
// session reads concurrently without locking.
package namespace
