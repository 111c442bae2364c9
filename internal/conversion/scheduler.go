package conversion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"seedshelf/internal/config"
	"seedshelf/internal/logging"
	"seedshelf/internal/services"
)

// Scheduler runs conversions through an Engine with bounded concurrency.
// Tasks are admitted in submission order; completed work stays in the
// registry until cleared.
type Scheduler struct {
	engine Engine
	logger *slog.Logger

	mu            sync.Mutex
	cond          *sync.Cond
	tasks         map[string]*Task
	pending       []string
	order         []string
	active        int
	maxConcurrent int
	paused        bool
	closed        bool

	subs    map[int]chan Event
	nextSub int

	workers    sync.WaitGroup
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewScheduler constructs a scheduler bound to the configured concurrency
// limit and starts its worker loop.
func NewScheduler(cfg *config.Config, engine Engine, logger *slog.Logger) (*Scheduler, error) {
	if engine == nil {
		return nil, services.Wrap(services.ErrConfiguration, "conversion", "new scheduler", "engine required", nil)
	}
	limit := config.MinConcurrent
	if cfg != nil {
		limit = cfg.Conversion.MaxConcurrent
	}
	if limit < config.MinConcurrent || limit > config.MaxConcurrent {
		return nil, services.Wrap(services.ErrConfiguration, "conversion", "new scheduler", fmt.Sprintf("max concurrent %d outside [%d, %d]", limit, config.MinConcurrent, config.MaxConcurrent), nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Scheduler{
		engine:        engine,
		logger:        logging.NewComponentLogger(logger, "scheduler"),
		tasks:         make(map[string]*Task),
		maxConcurrent: limit,
		subs:          make(map[int]chan Event),
	}
	s.cond = sync.NewCond(&s.mu)
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.workers.Add(1)
	go s.run()
	return s, nil
}

// Submit enqueues a conversion and returns a snapshot of the new task.
func (s *Scheduler) Submit(inputPath, outputPath string) (Task, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Task{}, services.Wrap(services.ErrValidation, "conversion", "submit", "scheduler closed", nil)
	}
	task := &Task{
		ID:         uuid.NewString(),
		InputPath:  inputPath,
		OutputPath: outputPath,
		Status:     StatusPending,
	}
	s.tasks[task.ID] = task
	s.pending = append(s.pending, task.ID)
	s.order = append(s.order, task.ID)
	snapshot := *task
	s.mu.Unlock()

	s.logger.Info("conversion queued",
		logging.String(logging.FieldTaskID, snapshot.ID),
		logging.String(logging.FieldInput, snapshot.InputPath),
		logging.String(logging.FieldOutput, snapshot.OutputPath),
	)
	s.emit(Event{Type: EventTaskQueued, Task: snapshot})
	s.signal()
	return snapshot, nil
}

// Task returns a snapshot of the identified task.
func (s *Scheduler) Task(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, services.Wrap(services.ErrNotFound, "conversion", "lookup task", "unknown task "+id, nil)
	}
	return *task, nil
}

// Tasks returns snapshots of every registered task in submission order.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		if task, ok := s.tasks[id]; ok {
			out = append(out, *task)
		}
	}
	return out
}

// QueueDepth reports pending and active task counts.
func (s *Scheduler) QueueDepth() (pending, active int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending), s.active
}

// Stats summarises the task registry by status.
type Stats struct {
	Pending   int
	Active    int
	Completed int
	Failed    int
}

// Stats reports registry counts at a point in time.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats Stats
	for _, task := range s.tasks {
		switch task.Status {
		case StatusPending:
			stats.Pending++
		case StatusProcessing:
			stats.Active++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// MaxConcurrent reports the current admission limit.
func (s *Scheduler) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxConcurrent
}

// SetMaxConcurrent adjusts the admission limit. Raising the limit admits
// waiting work immediately; lowering it lets running conversions finish and
// applies to subsequent admissions.
func (s *Scheduler) SetMaxConcurrent(limit int) error {
	if limit < config.MinConcurrent || limit > config.MaxConcurrent {
		return services.Wrap(services.ErrValidation, "conversion", "set max concurrent", fmt.Sprintf("max concurrent %d outside [%d, %d]", limit, config.MinConcurrent, config.MaxConcurrent), nil)
	}
	s.mu.Lock()
	changed := s.maxConcurrent != limit
	s.maxConcurrent = limit
	s.mu.Unlock()

	if changed {
		s.logger.Info("concurrency limit changed", logging.Int("max_concurrent", limit))
		s.emit(Event{Type: EventConfigChanged, MaxConcurrent: limit})
		s.signal()
	}
	return nil
}

// Pause stops admitting pending tasks. Conversions already running finish
// normally; submissions keep queueing.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	changed := !s.paused
	s.paused = true
	s.mu.Unlock()

	if changed {
		s.logger.Info("conversions paused")
		s.emit(Event{Type: EventPaused})
	}
}

// Resume re-enables task admission and drains any queued work.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	changed := s.paused
	s.paused = false
	s.mu.Unlock()

	if changed {
		s.logger.Info("conversions resumed")
		s.emit(Event{Type: EventResumed})
		s.signal()
	}
}

// Paused reports whether task admission is currently suspended.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// CancelTask removes a pending task from the queue. Tasks that already
// started cannot be cancelled.
func (s *Scheduler) CancelTask(id string) (Task, error) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return Task{}, services.Wrap(services.ErrNotFound, "conversion", "cancel task", "unknown task "+id, nil)
	}
	if task.Status != StatusPending {
		status := task.Status
		s.mu.Unlock()
		return Task{}, services.Wrap(services.ErrValidation, "conversion", "cancel task", fmt.Sprintf("task %s is %s; only pending tasks can be cancelled", id, status), nil)
	}
	for i, pendingID := range s.pending {
		if pendingID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	task.Status = StatusFailed
	task.Error = "Cancelled by user"
	task.CompletedAt = time.Now()
	snapshot := *task
	s.mu.Unlock()

	s.logger.Info("conversion cancelled", logging.String(logging.FieldTaskID, snapshot.ID))
	s.emit(Event{Type: EventTaskCancelled, Task: snapshot})
	return snapshot, nil
}

// ClearCompletedTasks drops terminal tasks from the registry and reports how
// many were removed. Pending and running tasks are untouched.
func (s *Scheduler) ClearCompletedTasks() int {
	s.mu.Lock()
	removed := 0
	kept := s.order[:0]
	for _, id := range s.order {
		task, ok := s.tasks[id]
		if !ok {
			continue
		}
		if task.Terminal() {
			delete(s.tasks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Info("queue cleaned", logging.Int("removed", removed))
		s.emit(Event{Type: EventQueueCleaned, Removed: removed})
	}
	return removed
}

// WaitIdle blocks until no pending or active work remains, or the context is
// cancelled.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.signal()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) > 0 || s.active > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	return nil
}

// Close stops admission, cancels in-flight engine invocations through their
// context, waits for workers to settle, and releases subscribers. Pending
// tasks that never started remain pending in the registry.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancelBase()
	s.signal()
	s.workers.Wait()

	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
}

func (s *Scheduler) signal() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// run is the admission loop. It holds s.mu only while deciding what to
// launch; each admitted task runs on its own goroutine.
func (s *Scheduler) run() {
	defer s.workers.Done()
	for {
		s.mu.Lock()
		for !s.closed && (s.paused || len(s.pending) == 0 || s.active >= s.maxConcurrent) {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		id := s.pending[0]
		s.pending = s.pending[1:]
		task, ok := s.tasks[id]
		if !ok || task.Status != StatusPending {
			s.mu.Unlock()
			continue
		}
		task.Status = StatusProcessing
		task.StartedAt = time.Now()
		s.active++
		snapshot := *task
		s.mu.Unlock()

		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			s.runTask(snapshot)
		}()
	}
}

func (s *Scheduler) runTask(task Task) {
	taskLogger := s.logger.With(
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldInput, task.InputPath),
		logging.String(logging.FieldOutput, task.OutputPath),
	)
	taskLogger.Info("conversion started")
	s.emit(Event{Type: EventTaskStarted, Task: task})

	err := s.convert(task, taskLogger)

	s.mu.Lock()
	current, ok := s.tasks[task.ID]
	if ok {
		current.CompletedAt = time.Now()
		if err != nil {
			current.Status = StatusFailed
			current.Error = err.Error()
		} else {
			current.Status = StatusCompleted
			current.Progress = 100
		}
		task = *current
	}
	s.active--
	s.cond.Broadcast()
	s.mu.Unlock()

	if err != nil {
		taskLogger.Error("conversion failed", logging.Error(err))
		s.emit(Event{Type: EventTaskFailed, Task: task})
		return
	}
	taskLogger.Info("conversion completed")
	s.emit(Event{Type: EventTaskCompleted, Task: task})
}

func (s *Scheduler) convert(task Task, taskLogger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(task.OutputPath), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "conversion", "prepare output", "create output directory", err)
	}

	lastReported := -1
	progress := func(update ProgressUpdate) {
		percent := int(update.Percent)
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		s.mu.Lock()
		current, ok := s.tasks[task.ID]
		if ok && percent > current.Progress {
			current.Progress = percent
			task = *current
		} else {
			ok = false
		}
		s.mu.Unlock()
		if !ok || percent == lastReported {
			return
		}
		lastReported = percent
		s.emit(Event{Type: EventConversionProgress, Task: task, Percent: percent})
	}

	if err := s.engine.Convert(s.baseCtx, task.InputPath, task.OutputPath, progress); err != nil {
		return services.Wrap(services.ErrExternalTool, "conversion", "convert", "transcode "+filepath.Base(task.InputPath), err)
	}
	return nil
}

// History returns terminal tasks ordered by completion time, oldest first.
func (s *Scheduler) History() []Task {
	s.mu.Lock()
	out := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if task.Terminal() {
			out = append(out, *task)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out
}
