package conversion

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"seedshelf/internal/media/ffprobe"
)

var commandContext = exec.CommandContext

// ProgressUpdate captures transcoder progress events.
type ProgressUpdate struct {
	Percent float64
	Speed   float64
	Message string
}

// Engine defines transcoding behaviour. Implementations write the converted
// file to outputPath and report progress through the callback when available.
type Engine interface {
	Convert(ctx context.Context, inputPath, outputPath string, progress func(ProgressUpdate)) error
}

// Option configures the ffmpeg engine.
type Option func(*FFmpeg)

// WithBinary overrides the default ffmpeg binary name.
func WithBinary(binary string) Option {
	return func(e *FFmpeg) {
		if binary != "" {
			e.binary = binary
		}
	}
}

// WithProbeBinary overrides the ffprobe binary used to determine input
// duration for percentage reporting.
func WithProbeBinary(binary string) Option {
	return func(e *FFmpeg) {
		if binary != "" {
			e.probeBinary = binary
		}
	}
}

// WithDurationProbe overrides how the engine determines input duration for
// percentage reporting.
func WithDurationProbe(probe func(ctx context.Context, path string) (float64, error)) Option {
	return func(e *FFmpeg) {
		if probe != nil {
			e.probeDuration = probe
		}
	}
}

// FFmpeg wraps the ffmpeg command-line transcoder, producing H.264/AAC MP4
// output suitable for direct play.
type FFmpeg struct {
	binary        string
	probeBinary   string
	probeDuration func(ctx context.Context, path string) (float64, error)
}

// NewFFmpeg constructs an ffmpeg engine using defaults.
func NewFFmpeg(opts ...Option) *FFmpeg {
	engine := &FFmpeg{
		binary:      "ffmpeg",
		probeBinary: "ffprobe",
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

func (e *FFmpeg) duration(ctx context.Context, path string) (float64, error) {
	if e.probeDuration != nil {
		return e.probeDuration(ctx, path)
	}
	result, err := ffprobe.Inspect(ctx, e.probeBinary, path)
	if err != nil {
		return 0, err
	}
	return result.DurationSeconds(), nil
}

// Convert transcodes inputPath into outputPath.
func (e *FFmpeg) Convert(ctx context.Context, inputPath, outputPath string, progress func(ProgressUpdate)) error {
	if strings.TrimSpace(inputPath) == "" {
		return errors.New("input path required")
	}
	if strings.TrimSpace(outputPath) == "" {
		return errors.New("output path required")
	}

	duration := 0.0
	if d, err := e.duration(ctx, inputPath); err == nil && d > 0 {
		duration = d
	}

	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", inputPath,
		"-c:v", "libx264", "-crf", "23", "-preset", "medium", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		"-f", "mp4",
		"-progress", "pipe:1",
		outputPath,
	}
	cmd := commandContext(ctx, e.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := newTailBuffer(32)
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	var speed float64
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "speed":
			if parsed, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
				speed = parsed
			}
		case "out_time_us":
			elapsed, err := strconv.ParseFloat(value, 64)
			if err != nil || duration <= 0 {
				continue
			}
			if progress != nil {
				progress(ProgressUpdate{Percent: (elapsed / 1e6) / duration * 100, Speed: speed})
			}
		case "progress":
			if value == "end" && progress != nil {
				progress(ProgressUpdate{Percent: 100, Speed: speed})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read ffmpeg output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		if detail := stderr.Tail(); detail != "" {
			return fmt.Errorf("ffmpeg conversion failed: %w: %s", err, detail)
		}
		return fmt.Errorf("ffmpeg conversion failed: %w", err)
	}
	return nil
}

var _ Engine = (*FFmpeg)(nil)

// tailBuffer retains the last n lines written to it. ffmpeg prints its
// failure reason at the end of stderr, so only the tail is worth keeping.
type tailBuffer struct {
	limit   int
	lines   []string
	partial strings.Builder
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	for _, c := range p {
		if c == '\n' || c == '\r' {
			if b.partial.Len() > 0 {
				b.push(b.partial.String())
				b.partial.Reset()
			}
			continue
		}
		b.partial.WriteByte(c)
	}
	return len(p), nil
}

func (b *tailBuffer) push(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	b.lines = append(b.lines, line)
	if len(b.lines) > b.limit {
		b.lines = b.lines[len(b.lines)-b.limit:]
	}
}

// Tail returns the final retained stderr line, which is usually the error.
func (b *tailBuffer) Tail() string {
	if b.partial.Len() > 0 {
		b.push(b.partial.String())
		b.partial.Reset()
	}
	if len(b.lines) == 0 {
		return ""
	}
	return strings.TrimSpace(b.lines[len(b.lines)-1])
}
