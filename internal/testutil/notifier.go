package testutil

import (
	"context"
	"sync"

	"facemark/internal/attend"
)

// RecordingNotifier captures delivered alert events.
// Safe for concurrent use.
type RecordingNotifier struct {
	Err error

	mu     sync.Mutex
	events []attend.AlertEvent
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Notify(_ context.Context, ev attend.AlertEvent) error {
	if n.Err != nil {
		return n.Err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

// Events returns the delivered events in order.
func (n *RecordingNotifier) Events() []attend.AlertEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]attend.AlertEvent, len(n.events))
	copy(out, n.events)
	return out
}
