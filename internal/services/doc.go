// Package services defines shared utilities consumed by the organization
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp conversion task IDs and batch identifiers
//     for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     (configuration vs external tool vs transient) consistently across
//     the analyzer, organizer, and scheduler.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability) stays uniform.
package services
