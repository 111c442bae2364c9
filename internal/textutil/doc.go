// Package textutil provides text processing for library organization:
// deriving a display title from a release-style filename and sanitizing
// names for safe filesystem use.
package textutil
