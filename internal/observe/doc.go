// Package observe defines the event vocabulary sessions report through and
// the Sink interface that metrics, audit, and logging plug into.
package observe
