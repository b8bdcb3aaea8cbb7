// Package database provides SQLite connectivity for fleetstate.
//
// It wraps database/sql with WAL-mode configuration, immediate-lock
// transactions for single-writer merge semantics, embedded schema
// migrations and health checks.
package database
