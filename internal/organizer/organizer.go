package organizer

import (
	"context"
	"path/filepath"
	"strings"

	"log/slog"

	"github.com/google/uuid"

	"seedshelf/internal/config"
	"seedshelf/internal/conversion"
	"seedshelf/internal/fileutil"
	"seedshelf/internal/logging"
	"seedshelf/internal/media/analysis"
	"seedshelf/internal/services"
)

// Action names the outcome branch chosen for a file.
type Action string

const (
	ActionSymlink Action = "symlink"
	ActionConvert Action = "convert"
	ActionSkip    Action = "skip"
)

// CompletedFile describes one finished download handed over by the upstream
// discovery collaborator. MediaType is precomputed by extension sniffing and
// trusted as-is.
type CompletedFile struct {
	Path      string
	Name      string
	MediaType string
}

// Result is the per-file outcome of an organization run. Task is present
// only when Action is convert; its lifecycle belongs to the scheduler and
// outlives this result.
type Result struct {
	SourcePath  string
	FileName    string
	MediaKind   MediaKind
	LibraryPath string
	Action      Action
	Task        *conversion.Task
	Success     bool
	Error       string
}

// TaskSubmitter enqueues conversion work. Satisfied by
// *conversion.Scheduler.
type TaskSubmitter interface {
	Submit(inputPath, outputPath string) (conversion.Task, error)
}

// Organizer walks batches of completed files and applies the
// symlink-vs-convert policy to each.
type Organizer struct {
	cfg       *config.Config
	analyzer  *analysis.Analyzer
	scheduler TaskSubmitter
	logger    *slog.Logger
}

// NewOrganizer constructs the organizer. A missing library directory while
// organization is enabled is a configuration error here, never mid-batch.
func NewOrganizer(cfg *config.Config, analyzer *analysis.Analyzer, scheduler TaskSubmitter, logger *slog.Logger) (*Organizer, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "organizer", "new organizer", "configuration required", nil)
	}
	if cfg.Library.Enabled && strings.TrimSpace(cfg.Paths.LibraryDir) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "organizer", "new organizer", "library_dir must be set while library organization is enabled", nil)
	}
	if analyzer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "organizer", "new organizer", "analyzer required", nil)
	}
	if scheduler == nil {
		return nil, services.Wrap(services.ErrConfiguration, "organizer", "new organizer", "scheduler required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Organizer{
		cfg:       cfg,
		analyzer:  analyzer,
		scheduler: scheduler,
		logger:    logging.NewComponentLogger(logger, "organizer"),
	}, nil
}

// Organize processes a batch of completed files and returns one result per
// input, in input order. Per-file errors are captured in the result; the
// batch always runs to the end. When organization is disabled the call is a
// no-op returning an empty list.
func (o *Organizer) Organize(ctx context.Context, files []CompletedFile) []Result {
	if !o.cfg.Library.Enabled {
		o.logger.Info("library organization disabled, skipping batch", logging.Int("files", len(files)))
		return []Result{}
	}

	batchID, ok := services.BatchIDFromContext(ctx)
	if !ok || batchID == "" {
		batchID = uuid.NewString()
		ctx = services.WithBatchID(ctx, batchID)
	}
	batchLogger := o.logger.With(logging.String(logging.FieldBatchID, batchID))
	batchLogger.Info("organizing completed files", logging.Int("files", len(files)))

	results := make([]Result, 0, len(files))
	for _, file := range files {
		result := o.organizeFile(ctx, batchLogger, file)
		if result.Error != "" && !result.Success {
			batchLogger.Warn("file organization failed",
				logging.String(logging.FieldInput, file.Path),
				logging.String("reason", result.Error),
			)
		}
		results = append(results, result)
	}
	return results
}

func (o *Organizer) organizeFile(ctx context.Context, logger *slog.Logger, file CompletedFile) Result {
	result := Result{
		SourcePath: file.Path,
		FileName:   file.Name,
	}

	if !strings.EqualFold(strings.TrimSpace(file.MediaType), "video") {
		result.Action = ActionSkip
		result.Success = true
		result.Error = "Not a video file"
		return result
	}

	if !fileutil.PathExists(file.Path) {
		err := services.Wrap(services.ErrNotFound, "organizer", "check source", "source not found: "+file.Path, nil)
		result.Success = false
		result.Error = err.Error()
		return result
	}

	mediaFacts, err := o.analyzer.Analyze(ctx, file.Path)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		return result
	}

	result.MediaKind = Classify(file.Name)
	result.LibraryPath = LibraryPath(o.cfg, result.MediaKind, file.Name)

	isOptimal := strings.EqualFold(filepath.Ext(file.Name), ".mp4") && !mediaFacts.NeedsConversion
	if isOptimal {
		if err := fileutil.CreateSymlink(file.Path, result.LibraryPath); err != nil {
			wrapped := services.Wrap(services.ErrTransient, "organizer", "create symlink", "link "+file.Name+" into library", err)
			result.Success = false
			result.Error = wrapped.Error()
			return result
		}
		result.Action = ActionSymlink
		result.Success = true
		logger.Info("linked into library",
			logging.String(logging.FieldInput, file.Path),
			logging.String(logging.FieldOutput, result.LibraryPath),
		)
		return result
	}

	result.LibraryPath = replaceExt(result.LibraryPath, ".mp4")
	task, err := o.scheduler.Submit(file.Path, result.LibraryPath)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		return result
	}
	result.Action = ActionConvert
	result.Task = &task
	result.Success = true
	logger.Info("queued for conversion",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldInput, file.Path),
		logging.String(logging.FieldOutput, result.LibraryPath),
		logging.String("video_codec", mediaFacts.VideoCodec),
		logging.String("audio_codec", mediaFacts.AudioCodec),
	)
	return result
}

func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
