package analysis

import "strings"

// AudioCodecNone is the audio codec value reported for silent containers.
const AudioCodecNone = "none"

// Optimal codec pair. Only this combination avoids conversion.
const (
	OptimalVideoCodec = "h264"
	OptimalAudioCodec = "aac"
)

var compatibleVideoCodecs = map[string]struct{}{
	"h264": {}, "h265": {}, "hevc": {}, "mpeg4": {}, "mpeg2video": {},
	"mpeg1video": {}, "wmv1": {}, "wmv2": {}, "wmv3": {}, "vc1": {},
	"vp8": {}, "vp9": {}, "av1": {},
}

var compatibleAudioCodecs = map[string]struct{}{
	"aac": {}, "mp3": {}, "ac3": {}, "eac3": {}, "dts": {}, "truehd": {},
	"flac": {}, "pcm_s16le": {}, "pcm_s24le": {}, "opus": {}, "vorbis": {},
}

// PlexCompatible reports whether the codec pair is inside the Plex Media
// Server support matrix. A missing audio track counts as compatible.
func PlexCompatible(videoCodec, audioCodec string) bool {
	if _, ok := compatibleVideoCodecs[strings.ToLower(videoCodec)]; !ok {
		return false
	}
	audio := strings.ToLower(audioCodec)
	if audio == AudioCodecNone {
		return true
	}
	_, ok := compatibleAudioCodecs[audio]
	return ok
}

// OptimalPair reports whether the codec pair is exactly H.264/AAC. The match
// is exact and case-sensitive on the lowercased ffprobe codec names; a
// compatible-but-non-optimal pair still requires conversion.
func OptimalPair(videoCodec, audioCodec string) bool {
	return videoCodec == OptimalVideoCodec && audioCodec == OptimalAudioCodec
}
