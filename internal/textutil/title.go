package textutil

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	episodeMarkerPattern = regexp.MustCompile(`(?i)\b(s\d+e\d+|season\s*\d+|episode\s*\d+|\d+x\d+)\b`)
	yearPattern          = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	resolutionPattern    = regexp.MustCompile(`(?i)\b(720p|1080p|2160p|4k)\b`)
	codecPattern         = regexp.MustCompile(`(?i)\b(x264|x265|h264|h265|hevc|av1|xvid|divx|10bit)\b`)
	sourcePattern        = regexp.MustCompile(`(?i)\b(bluray|blu-ray|bdrip|brrip|webrip|web-dl|webdl|hdtv|dvdrip|remux|proper|repack)\b`)
	separatorPattern     = regexp.MustCompile(`[._\-\[\]()]+`)
	spacePattern         = regexp.MustCompile(`\s+`)
)

// DeriveTitle turns a release-style filename stem into a display title:
// episode markers, years, and resolution/source/codec tokens are stripped,
// separators collapse to spaces, and the remainder is title-cased.
// Everything after the first stripped token is discarded since release names
// put the title first and the tag soup after.
func DeriveTitle(stem string) string {
	working := stem
	for _, pattern := range []*regexp.Regexp{
		episodeMarkerPattern,
		yearPattern,
		resolutionPattern,
		sourcePattern,
		codecPattern,
	} {
		if loc := pattern.FindStringIndex(working); loc != nil {
			working = working[:loc[0]]
		}
	}
	working = separatorPattern.ReplaceAllString(working, " ")
	working = spacePattern.ReplaceAllString(working, " ")
	working = strings.TrimSpace(working)
	if working == "" {
		return "Unknown"
	}
	return cases.Title(language.Und).String(strings.ToLower(working))
}

// IsEpisodic reports whether a filename carries episodic markers such as
// S01E01, 1x01, "Season 2", or "Episode 5".
func IsEpisodic(name string) bool {
	return episodeMarkerPattern.MatchString(name)
}
