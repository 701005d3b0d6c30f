package attend

import (
	"time"

	"facemark/internal/model"
)

// Journal records session lifecycles and per-face pipeline decisions.
// Journal writes are best-effort from the pipeline's point of view: a
// failed write is logged, never fatal to a running session.
type Journal interface {
	// StartSession inserts a session row with no stop time.
	StartSession(s model.ScanSession) error

	// EndSession sets the stop time of a session.
	EndSession(id string, stoppedAt time.Time) error

	// RecordEvent appends one recognition event.
	RecordEvent(e model.RecognitionEvent) error

	// RecentEvents returns events newest-first. n <= 0 returns all.
	RecentEvents(n int) ([]model.RecognitionEvent, error)

	// SessionEvents returns a session's events oldest-first.
	SessionEvents(sessionID string) ([]model.RecognitionEvent, error)

	// Close releases the underlying store.
	Close() error
}
