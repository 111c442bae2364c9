// Package organizer decides, for each completed download, whether the file
// can be exposed to the media library through a symlink or must be handed to
// the conversion scheduler, and carries out that decision per file without
// letting one failure abort the batch.
package organizer
