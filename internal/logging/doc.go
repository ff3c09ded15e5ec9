// Package logging assembles structured slog loggers and attribute helpers used
// across hearth clients and daemons.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and defines the standard field keys (component, event_type,
// error_hint, impact, daemon_uid, address) so connector and daemon log lines
// can be correlated across processes. A no-op logger is provided for tests and
// wiring code that cannot fail.
package logging
