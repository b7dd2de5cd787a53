// Package database provides PostgreSQL connection pool management for the
// optional session audit log.
package database
