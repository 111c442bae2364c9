package conversion

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"seedshelf/internal/config"
	"seedshelf/internal/logging"
	"seedshelf/internal/services"
)

// fakeEngine records when conversions start and holds each one open until the
// test releases it.
type fakeEngine struct {
	mu      sync.Mutex
	started chan string
	release map[string]chan error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		started: make(chan string, 16),
		release: make(map[string]chan error),
	}
}

func (e *fakeEngine) Convert(ctx context.Context, inputPath, outputPath string, progress func(ProgressUpdate)) error {
	e.mu.Lock()
	ch, ok := e.release[inputPath]
	if !ok {
		ch = make(chan error, 1)
		e.release[inputPath] = ch
	}
	e.mu.Unlock()
	e.started <- inputPath
	return <-ch
}

func (e *fakeEngine) finish(inputPath string, err error) {
	e.mu.Lock()
	ch, ok := e.release[inputPath]
	if !ok {
		ch = make(chan error, 1)
		e.release[inputPath] = ch
	}
	e.mu.Unlock()
	ch <- err
}

// instantEngine completes immediately, optionally replaying progress values.
type instantEngine struct {
	percents []float64
	err      error
}

func (e *instantEngine) Convert(ctx context.Context, inputPath, outputPath string, progress func(ProgressUpdate)) error {
	for _, percent := range e.percents {
		if progress != nil {
			progress(ProgressUpdate{Percent: percent})
		}
	}
	return e.err
}

func schedulerConfig(t *testing.T, maxConcurrent int) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Conversion.MaxConcurrent = maxConcurrent
	return &cfg
}

func newTestScheduler(t *testing.T, engine Engine, maxConcurrent int) *Scheduler {
	t.Helper()
	scheduler, err := NewScheduler(schedulerConfig(t, maxConcurrent), engine, logging.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler returned error: %v", err)
	}
	t.Cleanup(scheduler.Close)
	return scheduler
}

func waitStarted(t *testing.T, engine *fakeEngine) string {
	t.Helper()
	select {
	case input := <-engine.started:
		return input
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a conversion to start")
		return ""
	}
}

func assertNotStarted(t *testing.T, engine *fakeEngine) {
	t.Helper()
	select {
	case input := <-engine.started:
		t.Fatalf("unexpected conversion start for %q", input)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitIdle(t *testing.T, scheduler *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := scheduler.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle returned error: %v", err)
	}
}

func TestNewSchedulerRejectsInvalidConcurrency(t *testing.T) {
	for _, limit := range []int{0, -1, 5} {
		if _, err := NewScheduler(schedulerConfig(t, limit), newFakeEngine(), logging.NewNop()); err == nil {
			t.Fatalf("expected error for max_concurrent %d", limit)
		}
	}
}

func TestNewSchedulerRequiresEngine(t *testing.T) {
	if _, err := NewScheduler(schedulerConfig(t, 2), nil, logging.NewNop()); err == nil {
		t.Fatal("expected error when engine is nil")
	}
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	engine := newFakeEngine()
	scheduler := newTestScheduler(t, engine, 2)

	dir := t.TempDir()
	inputs := []string{"a.mkv", "b.mkv", "c.mkv", "d.mkv"}
	for _, name := range inputs {
		input := filepath.Join(dir, name)
		if _, err := scheduler.Submit(input, input+".mp4"); err != nil {
			t.Fatalf("Submit returned error: %v", err)
		}
	}

	first := waitStarted(t, engine)
	second := waitStarted(t, engine)
	assertNotStarted(t, engine)

	if pending, active := scheduler.QueueDepth(); pending != 2 || active != 2 {
		t.Fatalf("expected 2 pending and 2 active, got %d pending %d active", pending, active)
	}

	engine.finish(first, nil)
	third := waitStarted(t, engine)
	assertNotStarted(t, engine)

	engine.finish(second, nil)
	engine.finish(third, nil)
	engine.finish(waitStarted(t, engine), nil)
	waitIdle(t, scheduler)

	for _, task := range scheduler.Tasks() {
		if task.Status != StatusCompleted {
			t.Fatalf("expected every task completed, got %s for %s", task.Status, task.InputPath)
		}
	}
}

func TestSchedulerRunsTasksInSubmissionOrder(t *testing.T) {
	engine := newFakeEngine()
	scheduler := newTestScheduler(t, engine, 1)

	dir := t.TempDir()
	inputs := make([]string, 0, 3)
	for _, name := range []string{"first.mkv", "second.mkv", "third.mkv"} {
		input := filepath.Join(dir, name)
		inputs = append(inputs, input)
		if _, err := scheduler.Submit(input, input+".mp4"); err != nil {
			t.Fatalf("Submit returned error: %v", err)
		}
	}

	for _, expected := range inputs {
		started := waitStarted(t, engine)
		if started != expected {
			t.Fatalf("expected %s to start next, got %s", expected, started)
		}
		engine.finish(started, nil)
	}
	waitIdle(t, scheduler)
}

func TestSchedulerCancelPendingOnly(t *testing.T) {
	engine := newFakeEngine()
	scheduler := newTestScheduler(t, engine, 1)

	dir := t.TempDir()
	activeInput := filepath.Join(dir, "active.mkv")
	pendingInput := filepath.Join(dir, "pending.mkv")
	activeTask, err := scheduler.Submit(activeInput, activeInput+".mp4")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	pendingTask, err := scheduler.Submit(pendingInput, pendingInput+".mp4")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	waitStarted(t, engine)

	cancelled, err := scheduler.CancelTask(pendingTask.ID)
	if err != nil {
		t.Fatalf("CancelTask returned error: %v", err)
	}
	if cancelled.Status != StatusFailed {
		t.Fatalf("expected cancelled task to be failed, got %s", cancelled.Status)
	}
	if cancelled.Error != "Cancelled by user" {
		t.Fatalf("expected cancellation reason, got %q", cancelled.Error)
	}

	if _, err := scheduler.CancelTask(activeTask.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error cancelling a running task, got %v", err)
	}
	if _, err := scheduler.CancelTask("no-such-task"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}

	engine.finish(activeInput, nil)
	waitIdle(t, scheduler)
	assertNotStarted(t, engine)
}

func TestSchedulerClearCompletedTasks(t *testing.T) {
	engine := newFakeEngine()
	scheduler := newTestScheduler(t, engine, 1)

	dir := t.TempDir()
	doneInput := filepath.Join(dir, "done.mkv")
	failedInput := filepath.Join(dir, "failed.mkv")
	heldInput := filepath.Join(dir, "held.mkv")
	for _, input := range []string{doneInput, failedInput, heldInput} {
		if _, err := scheduler.Submit(input, input+".mp4"); err != nil {
			t.Fatalf("Submit returned error: %v", err)
		}
	}

	engine.finish(waitStarted(t, engine), nil)
	engine.finish(waitStarted(t, engine), errors.New("transcode blew up"))
	waitStarted(t, engine)

	if removed := scheduler.ClearCompletedTasks(); removed != 2 {
		t.Fatalf("expected 2 terminal tasks removed, got %d", removed)
	}
	if removed := scheduler.ClearCompletedTasks(); removed != 0 {
		t.Fatalf("expected repeat clear to remove nothing, got %d", removed)
	}

	remaining := scheduler.Tasks()
	if len(remaining) != 1 || remaining[0].InputPath != heldInput {
		t.Fatalf("expected only the running task to remain, got %+v", remaining)
	}

	engine.finish(heldInput, nil)
	waitIdle(t, scheduler)
}

func TestSchedulerSetMaxConcurrent(t *testing.T) {
	engine := newFakeEngine()
	scheduler := newTestScheduler(t, engine, 1)

	for _, limit := range []int{0, 5} {
		if err := scheduler.SetMaxConcurrent(limit); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for limit %d, got %v", limit, err)
		}
	}

	dir := t.TempDir()
	firstInput := filepath.Join(dir, "first.mkv")
	secondInput := filepath.Join(dir, "second.mkv")
	for _, input := range []string{firstInput, secondInput} {
		if _, err := scheduler.Submit(input, input+".mp4"); err != nil {
			t.Fatalf("Submit returned error: %v", err)
		}
	}

	waitStarted(t, engine)
	assertNotStarted(t, engine)

	if err := scheduler.SetMaxConcurrent(2); err != nil {
		t.Fatalf("SetMaxConcurrent returned error: %v", err)
	}
	if got := scheduler.MaxConcurrent(); got != 2 {
		t.Fatalf("expected limit 2, got %d", got)
	}
	waitStarted(t, engine)

	engine.finish(firstInput, nil)
	engine.finish(secondInput, nil)
	waitIdle(t, scheduler)
}

func TestSchedulerFailureRecordsError(t *testing.T) {
	scheduler := newTestScheduler(t, &instantEngine{err: errors.New("codec not supported")}, 1)

	dir := t.TempDir()
	input := filepath.Join(dir, "broken.mkv")
	task, err := scheduler.Submit(input, input+".mp4")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	waitIdle(t, scheduler)

	failed, err := scheduler.Task(task.ID)
	if err != nil {
		t.Fatalf("Task returned error: %v", err)
	}
	if failed.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", failed.Status)
	}
	if failed.Error == "" || failed.CompletedAt.IsZero() {
		t.Fatalf("expected error text and completion time, got %+v", failed)
	}
}

func TestSchedulerClampsProgress(t *testing.T) {
	scheduler := newTestScheduler(t, &instantEngine{percents: []float64{-5, 30, 20, 150}}, 1)

	events, cancel := scheduler.Subscribe()
	defer cancel()

	dir := t.TempDir()
	input := filepath.Join(dir, "clip.mkv")
	if _, err := scheduler.Submit(input, input+".mp4"); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	waitIdle(t, scheduler)

	var percents []int
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-events:
			if event.Type == EventTaskCompleted {
				for i, percent := range percents {
					if percent < 0 || percent > 100 {
						t.Fatalf("progress event outside [0, 100]: %d", percent)
					}
					if i > 0 && percent <= percents[i-1] {
						t.Fatalf("progress regressed: %v", percents)
					}
				}
				if len(percents) == 0 {
					t.Fatal("expected at least one progress event")
				}
				return
			}
			if event.Type == EventConversionProgress {
				percents = append(percents, event.Percent)
			}
		case <-deadline:
			t.Fatal("timed out waiting for completion event")
		}
	}
}

func TestSchedulerEmitsLifecycleEvents(t *testing.T) {
	scheduler := newTestScheduler(t, &instantEngine{}, 1)

	events, cancel := scheduler.Subscribe()
	defer cancel()

	dir := t.TempDir()
	input := filepath.Join(dir, "movie.mkv")
	task, err := scheduler.Submit(input, input+".mp4")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	waitIdle(t, scheduler)

	seen := make(map[EventType]bool)
	deadline := time.After(2 * time.Second)
	for !seen[EventTaskCompleted] {
		select {
		case event := <-events:
			seen[event.Type] = true
			if event.Type == EventTaskCompleted && event.Task.ID != task.ID {
				t.Fatalf("completion event for unexpected task %q", event.Task.ID)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for lifecycle events, saw %v", seen)
		}
	}
	for _, expected := range []EventType{EventTaskQueued, EventTaskStarted, EventTaskCompleted} {
		if !seen[expected] {
			t.Fatalf("expected %s event, saw %v", expected, seen)
		}
	}
}

func TestSchedulerSubscriberCancelDuringEmit(t *testing.T) {
	scheduler := newTestScheduler(t, &instantEngine{}, 1)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limit := 1
			for {
				select {
				case <-stop:
					return
				default:
					limit = 3 - limit
					_ = scheduler.SetMaxConcurrent(limit)
				}
			}
		}()
	}

	// Churn subscriptions while events are flying; a send racing a cancel
	// must never panic the process.
	for i := 0; i < 500; i++ {
		events, cancel := scheduler.Subscribe()
		select {
		case <-events:
		default:
		}
		cancel()
	}

	close(stop)
	wg.Wait()
}

func TestSchedulerQueueCleanedEventOnlyWhenRemoved(t *testing.T) {
	scheduler := newTestScheduler(t, &instantEngine{}, 1)

	events, cancel := scheduler.Subscribe()
	defer cancel()

	if removed := scheduler.ClearCompletedTasks(); removed != 0 {
		t.Fatalf("expected nothing to clear, got %d", removed)
	}
	select {
	case event := <-events:
		t.Fatalf("unexpected %s event for a clear that removed nothing", event.Type)
	case <-time.After(100 * time.Millisecond):
	}

	input := filepath.Join(t.TempDir(), "done.mkv")
	if _, err := scheduler.Submit(input, input+".mp4"); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	waitIdle(t, scheduler)

	if removed := scheduler.ClearCompletedTasks(); removed != 1 {
		t.Fatalf("expected 1 terminal task removed, got %d", removed)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-events:
			if event.Type != EventQueueCleaned {
				continue
			}
			if event.Removed != 1 {
				t.Fatalf("expected queueCleaned with 1 removed, got %d", event.Removed)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for queueCleaned event")
		}
	}
}

func TestSchedulerPauseResume(t *testing.T) {
	engine := newFakeEngine()
	scheduler := newTestScheduler(t, engine, 1)

	scheduler.Pause()
	if !scheduler.Paused() {
		t.Fatal("expected scheduler to report paused")
	}

	dir := t.TempDir()
	input := filepath.Join(dir, "held.mkv")
	if _, err := scheduler.Submit(input, input+".mp4"); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	assertNotStarted(t, engine)

	scheduler.Resume()
	if scheduler.Paused() {
		t.Fatal("expected scheduler to report resumed")
	}
	started := waitStarted(t, engine)
	engine.finish(started, nil)
	waitIdle(t, scheduler)
}

func TestSchedulerTaskLookupUnknown(t *testing.T) {
	scheduler := newTestScheduler(t, &instantEngine{}, 1)
	if _, err := scheduler.Task("missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestSchedulerSubmitAfterClose(t *testing.T) {
	scheduler := newTestScheduler(t, &instantEngine{}, 1)
	scheduler.Close()
	if _, err := scheduler.Submit("/tmp/in.mkv", "/tmp/out.mp4"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error after close, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	for _, status := range AllStatuses() {
		parsed, ok := ParseStatus(string(status))
		if !ok {
			t.Fatalf("ParseStatus(%q) did not recognise a known status", status)
		}
		if parsed != status {
			t.Fatalf("expected %s, got %s", status, parsed)
		}
	}
	if parsed, ok := ParseStatus(" Completed "); !ok || parsed != StatusCompleted {
		t.Fatalf("expected normalised parse, got %q ok=%v", parsed, ok)
	}
	if _, ok := ParseStatus("bogus"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}
