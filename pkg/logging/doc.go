// Package logging provides the structured logging facility used by every
// reins subsystem.
//
// It is a thin wrapper over log/slog that tags each entry with a subsystem
// name so daemon logs can be filtered per component (Vault, Refresh,
// Lifecycle, Daemon, ...). Call Init once at startup; the package-level
// Debug/Info/Warn/Error functions are safe for concurrent use.
package logging
