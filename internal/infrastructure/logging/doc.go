// Package logging provides structured logging for fleetstate.
//
// It wraps log/slog with level/format/output configuration and service
// default fields. Components receive a *Logger (or a narrow interface of
// it) via dependency injection rather than using a package-level logger.
package logging
