package internal

import (
	"sync"
	"time"

	"github.com/TheSlimvReal/posture-client/pkg/models"
)

// EventRecorder is an EventSink that keeps every dispatched event
type EventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *EventRecorder) Dispatch(e models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *EventRecorder) Events() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

// Kinds returns the kinds of all recorded events in order
func (r *EventRecorder) Kinds() []models.EventKind {
	out := []models.EventKind{}
	for _, e := range r.Events() {
		out = append(out, e.Kind)
	}
	return out
}

// WaitFor polls until n events of kind were recorded and returns them
func (r *EventRecorder) WaitFor(kind models.EventKind, n int, timeout time.Duration) ([]models.Event, bool) {
	deadline := time.Now().Add(timeout)
	for {
		matched := []models.Event{}
		for _, e := range r.Events() {
			if e.Kind == kind {
				matched = append(matched, e)
			}
		}
		if len(matched) >= n {
			return matched, true
		}
		if time.Now().After(deadline) {
			return matched, false
		}
		time.Sleep(2 * time.Millisecond)
	}
}
