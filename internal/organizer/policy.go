package organizer

import (
	"path/filepath"
	"strings"

	"seedshelf/internal/config"
	"seedshelf/internal/textutil"
)

// MediaKind classifies a file for library placement.
type MediaKind string

const (
	KindMovie    MediaKind = "movie"
	KindEpisodic MediaKind = "tv"
)

// Subdir returns the library subdirectory configured for the kind.
func (k MediaKind) Subdir(cfg *config.Config) string {
	if k == KindEpisodic {
		return cfg.Library.TVDir
	}
	return cfg.Library.MoviesDir
}

// Classify sorts a filename into movie or episodic by marker heuristics.
// There is no external metadata lookup; S01E01-style markers, 1x01
// notation, and "season"/"episode" words are the whole signal.
func Classify(name string) MediaKind {
	if textutil.IsEpisodic(name) {
		return KindEpisodic
	}
	return KindMovie
}

// LibraryPath computes the destination for a file:
// {root}/{Movies|TV Shows}/{Title}/{basename}.
func LibraryPath(cfg *config.Config, kind MediaKind, fileName string) string {
	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	title := textutil.SanitizeFileName(textutil.DeriveTitle(stem))
	if title == "" {
		title = "Unknown"
	}
	return filepath.Join(cfg.Paths.LibraryDir, kind.Subdir(cfg), title, fileName)
}

// videoExtensions mirrors the upstream completed-file sniffer; used only to
// reject descriptors whose declared media type disagrees with the name.
var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".avi": {}, ".mov": {}, ".wmv": {},
	".flv": {}, ".webm": {}, ".m4v": {}, ".mpg": {}, ".mpeg": {}, ".ts": {},
}

// IsVideoName reports whether the filename carries a known video extension.
func IsVideoName(name string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}
