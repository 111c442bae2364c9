// Package logging assembles structured slog loggers and formatting helpers
// used across seedshelf components.
//
// It centralizes level and output plumbing for the console and JSON formats,
// and exposes context-aware helpers so pipeline code can automatically tag
// log lines with conversion task IDs and batch identifiers. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape as the rest of the system.
package logging
