// Package handlers provides the example namespaces served by nsmuxd.
package handlers
