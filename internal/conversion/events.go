package conversion

// EventType names a scheduler lifecycle event.
type EventType string

const (
	EventTaskQueued         EventType = "taskQueued"
	EventTaskStarted        EventType = "taskStarted"
	EventConversionProgress EventType = "conversionProgress"
	EventTaskCompleted      EventType = "taskCompleted"
	EventTaskFailed         EventType = "taskFailed"
	EventTaskCancelled      EventType = "taskCancelled"
	EventQueueCleaned       EventType = "queueCleaned"
	EventConfigChanged      EventType = "configChanged"
	EventPaused             EventType = "conversionsPaused"
	EventResumed            EventType = "conversionsResumed"
)

// Event is one scheduler lifecycle notification. Task is a snapshot taken at
// emission time; it is zero for events that do not concern a single task.
type Event struct {
	Type EventType
	Task Task

	// Percent is set for conversionProgress events.
	Percent int
	// Removed is set for queueCleaned events.
	Removed int
	// MaxConcurrent is set for configChanged events.
	MaxConcurrent int
}

const subscriberBuffer = 128

// Subscribe registers an event consumer. The returned cancel function must be
// called to release the subscription. Slow consumers lose events rather than
// blocking the scheduler; the task registry remains the authoritative record.
func (s *Scheduler) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, subscriberBuffer)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// emit fans an event out to all subscribers. Callers must not hold s.mu.
// Sends happen under s.mu: cancellation closes subscriber channels under the
// same lock, so a send can never hit a channel that a concurrent cancel has
// already closed. The sends are non-blocking, so the lock is held only
// briefly.
func (s *Scheduler) emit(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
