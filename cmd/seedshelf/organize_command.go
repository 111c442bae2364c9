package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"log/slog"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"seedshelf/internal/conversion"
	"seedshelf/internal/history"
	"seedshelf/internal/logging"
	"seedshelf/internal/media/analysis"
	"seedshelf/internal/notifications"
	"seedshelf/internal/organizer"
	"seedshelf/internal/services"
)

func newOrganizeCommand(ctx *commandContext) *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "organize <path>...",
		Short: "Organize completed downloads into the library",
		Long: "Analyzes each file, symlinks already-optimal files into the library, " +
			"and queues everything else for conversion. Directories are walked recursively.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			lock := flock.New(filepath.Join(cfg.Paths.StateDir, "seedshelf.lock"))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !locked {
				return errors.New("another seedshelf instance is already organizing")
			}
			defer func() { _ = lock.Unlock() }()

			files, err := collectFiles(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to organize")
				return nil
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			notifier := notifications.NewService(cfg)
			analyzer := analysis.NewAnalyzer(cfg, logger)
			engine := conversion.NewFFmpeg(
				conversion.WithBinary(cfg.FFmpegBinary()),
				conversion.WithProbeBinary(cfg.FFprobeBinary()),
			)
			scheduler, err := conversion.NewScheduler(cfg, engine, logger)
			if err != nil {
				return err
			}
			defer scheduler.Close()

			org, err := organizer.NewOrganizer(cfg, analyzer, scheduler, logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			events, cancelEvents := scheduler.Subscribe()
			defer cancelEvents()
			recorderDone := make(chan struct{})
			go func() {
				defer close(recorderDone)
				recordSchedulerEvents(runCtx, store, notifier, logger, events)
			}()

			batchID := uuid.NewString()
			results := org.Organize(services.WithBatchID(runCtx, batchID), files)

			organized, failed := 0, 0
			rows := make([][]string, 0, len(results))
			for _, result := range results {
				if result.Success {
					organized++
				} else {
					failed++
				}
				if err := store.RecordResult(runCtx, history.OrganizationRecord{
					BatchID:     batchID,
					SourcePath:  result.SourcePath,
					FileName:    result.FileName,
					MediaType:   string(result.MediaKind),
					LibraryPath: result.LibraryPath,
					Action:      string(result.Action),
					Success:     result.Success,
					Error:       result.Error,
				}); err != nil {
					logger.Warn("failed to record organization result", logging.Error(err))
				}
				rows = append(rows, []string{
					result.FileName,
					string(result.Action),
					okOrError(result.Success, result.Error),
					result.LibraryPath,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"File", "Action", "Outcome", "Destination"}, rows))

			if pending, active := scheduler.QueueDepth(); !noWait && pending+active > 0 {
				fmt.Fprintf(out, "Waiting for %d conversions to finish (Ctrl-C to stop waiting)\n", pending+active)
				if err := scheduler.WaitIdle(runCtx); err != nil {
					logger.Warn("stopped waiting for conversions", logging.Error(err))
				}
			}
			cancelEvents()
			<-recorderDone

			stats := scheduler.Stats()
			if stats.Completed+stats.Failed > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Conversions", "Count"},
					[][]string{
						{"completed", strconv.Itoa(stats.Completed)},
						{"failed", strconv.Itoa(stats.Failed)},
						{"pending", strconv.Itoa(stats.Pending)},
					},
					2,
				))
			}

			if err := notifier.NotifyOrganizationCompleted(runCtx, organized, failed); err != nil {
				logger.Warn("organization notification failed", logging.Error(err))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Exit after queueing conversions instead of waiting for them")
	return cmd
}

// recordSchedulerEvents mirrors scheduler lifecycle events into the history
// store and pushes completion/failure notifications. Progress events are not
// persisted; terminal snapshots carry the final state.
func recordSchedulerEvents(ctx context.Context, store *history.Store, notifier notifications.Service, logger *slog.Logger, events <-chan conversion.Event) {
	for event := range events {
		switch event.Type {
		case conversion.EventTaskQueued, conversion.EventTaskStarted, conversion.EventTaskCompleted, conversion.EventTaskFailed, conversion.EventTaskCancelled:
			if err := store.RecordTask(ctx, event.Task); err != nil {
				logger.Warn("failed to record task snapshot", logging.Error(err))
			}
		}
		switch event.Type {
		case conversion.EventTaskCompleted:
			if err := notifier.NotifyConversionCompleted(ctx, filepath.Base(event.Task.OutputPath)); err != nil {
				logger.Warn("conversion notification failed", logging.Error(err))
			}
		case conversion.EventTaskFailed:
			if event.Task.Error == "Cancelled by user" {
				continue
			}
			if err := notifier.NotifyConversionFailed(ctx, filepath.Base(event.Task.InputPath), event.Task.Error); err != nil {
				logger.Warn("conversion notification failed", logging.Error(err))
			}
		}
	}
}

// collectFiles expands arguments into completed-file descriptors. Media type
// is sniffed by extension, matching what the upstream discovery layer does.
func collectFiles(args []string) ([]organizer.CompletedFile, error) {
	var files []organizer.CompletedFile
	appendFile := func(path string) {
		mediaType := "other"
		if organizer.IsVideoName(path) {
			mediaType = "video"
		}
		files = append(files, organizer.CompletedFile{
			Path:      path,
			Name:      filepath.Base(path),
			MediaType: mediaType,
		})
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			// Let the organizer report it as a per-file failure.
			files = append(files, organizer.CompletedFile{
				Path:      arg,
				Name:      filepath.Base(arg),
				MediaType: "video",
			})
			continue
		}
		if !info.IsDir() {
			appendFile(arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.Type().IsRegular() {
				appendFile(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", arg, err)
		}
	}
	return files, nil
}

func okOrError(success bool, errText string) string {
	if success {
		if errText != "" {
			return errText
		}
		return "ok"
	}
	return "failed: " + errText
}
