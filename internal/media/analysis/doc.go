// Package analysis inspects media files and decides codec compatibility.
//
// The Analyzer shells out to ffprobe (via internal/media/ffprobe) and reduces
// the probe result to the facts the organization policy needs: the video and
// audio codec names, duration, resolution, whether the pair sits inside the
// Plex compatibility whitelist, and whether the file must be converted to the
// optimal H.264/AAC pairing.
//
// Compatibility and optimality are deliberately different tests: an
// HEVC/AC3 file plays on Plex but still converts, because only H.264/AAC in
// an MP4 container avoids transcoding on every client.
package analysis
