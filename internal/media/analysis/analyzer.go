package analysis

import (
	"context"
	"strings"
	"sync"

	"log/slog"

	"seedshelf/internal/config"
	"seedshelf/internal/logging"
	"seedshelf/internal/media/ffprobe"
	"seedshelf/internal/services"
)

// probe is the ffprobe function used by the analyzer.
// It is a package-level variable so tests can override it.
var probe = ffprobe.Inspect

// SetProbeForTests overrides the ffprobe runner during tests.
func SetProbeForTests(fn func(context.Context, string, string) (ffprobe.Result, error)) func() {
	previous := probe
	probe = fn
	return func() {
		probe = previous
	}
}

// Analysis captures the codec facts of one media file.
type Analysis struct {
	VideoCodec      string
	AudioCodec      string
	Duration        float64
	Resolution      string
	PlexCompatible  bool
	NeedsConversion bool
}

// Analyzer inspects media files via ffprobe.
type Analyzer struct {
	binary string
	logger *slog.Logger
}

// NewAnalyzer constructs an analyzer using the configured ffprobe binary.
func NewAnalyzer(cfg *config.Config, logger *slog.Logger) *Analyzer {
	binary := "ffprobe"
	if cfg != nil {
		binary = cfg.FFprobeBinary()
	}
	return &Analyzer{
		binary: binary,
		logger: logging.NewComponentLogger(logger, "analyzer"),
	}
}

// Analyze probes a media file and reduces the result to an Analysis.
//
// Files without a video stream are rejected; this pipeline organizes a video
// library and has no destination for audio-only containers. A missing audio
// stream is tolerated and reported as AudioCodec "none".
func (a *Analyzer) Analyze(ctx context.Context, path string) (Analysis, error) {
	result, err := probe(ctx, a.binary, path)
	if err != nil {
		return Analysis{}, services.Wrap(services.ErrExternalTool, "analyzer", "probe", "ffprobe failed for "+path, err)
	}

	video, ok := result.VideoStream()
	if !ok {
		return Analysis{}, services.Wrap(services.ErrExternalTool, "analyzer", "parse", "no video stream found in "+path, nil)
	}

	videoCodec := strings.ToLower(strings.TrimSpace(video.CodecName))
	if videoCodec == "" {
		videoCodec = "unknown"
	}

	audioCodec := AudioCodecNone
	if audio, ok := result.AudioStream(); ok {
		audioCodec = strings.ToLower(strings.TrimSpace(audio.CodecName))
		if audioCodec == "" {
			audioCodec = "unknown"
		}
	} else {
		a.logger.Warn("no audio stream found", logging.String(logging.FieldInput, path))
	}

	return Analysis{
		VideoCodec:      videoCodec,
		AudioCodec:      audioCodec,
		Duration:        result.DurationSeconds(),
		Resolution:      video.Resolution(),
		PlexCompatible:  PlexCompatible(videoCodec, audioCodec),
		NeedsConversion: !OptimalPair(videoCodec, audioCodec),
	}, nil
}

// NeedsOptimalConversion reports whether a file must be transcoded to the
// optimal format. Analysis failure assumes conversion is needed rather than
// silently exposing a possibly broken file.
func (a *Analyzer) NeedsOptimalConversion(ctx context.Context, path string) bool {
	result, err := a.Analyze(ctx, path)
	if err != nil {
		a.logger.Warn("analysis failed, assuming conversion needed",
			logging.String(logging.FieldInput, path),
			logging.Error(err),
		)
		return true
	}
	return result.NeedsConversion
}

// BatchAnalyze probes all paths concurrently. Probing is metadata-only and
// cheap, so the fan-out is unbounded. Failures are logged and omitted from
// the result map; one bad file never aborts the batch.
func (a *Analyzer) BatchAnalyze(ctx context.Context, paths []string) map[string]Analysis {
	results := make(map[string]Analysis, len(paths))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, path := range paths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			result, err := a.Analyze(ctx, path)
			if err != nil {
				a.logger.Warn("batch analysis failed",
					logging.String(logging.FieldInput, path),
					logging.Error(err),
				)
				return
			}
			mu.Lock()
			results[path] = result
			mu.Unlock()
		}(path)
	}
	wg.Wait()

	return results
}
