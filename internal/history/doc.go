// Package history persists organization outcomes and finished conversion
// tasks to SQLite so past runs can be inspected after the process exits.
package history
