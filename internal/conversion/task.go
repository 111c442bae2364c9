package conversion

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a conversion task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether a status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is one unit of conversion work. Values handed out by the scheduler
// are snapshots; the scheduler owns the live record.
type Task struct {
	ID          string
	InputPath   string
	OutputPath  string
	Status      Status
	Progress    int
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
}

// Terminal reports whether the task has finished, successfully or not.
func (t Task) Terminal() bool {
	return t.Status.IsTerminal()
}
