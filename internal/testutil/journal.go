package testutil

import (
	"fmt"
	"sync"
	"time"

	"facemark/internal/model"
)

// MemoryJournal records sessions and events in memory.
// Safe for concurrent use.
type MemoryJournal struct {
	StartErr error
	EventErr error

	mu       sync.Mutex
	sessions []model.ScanSession
	events   []model.RecognitionEvent
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) StartSession(s model.ScanSession) error {
	if j.StartErr != nil {
		return j.StartErr
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sessions = append(j.sessions, s)
	return nil
}

func (j *MemoryJournal) EndSession(id string, stoppedAt time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := range j.sessions {
		if j.sessions[i].ID == id {
			t := stoppedAt
			j.sessions[i].StoppedAt = &t
			return nil
		}
	}
	return fmt.Errorf("session not found: %s", id)
}

func (j *MemoryJournal) RecordEvent(e model.RecognitionEvent) error {
	if j.EventErr != nil {
		return j.EventErr
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
	return nil
}

func (j *MemoryJournal) RecentEvents(n int) ([]model.RecognitionEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]model.RecognitionEvent, 0, len(j.events))
	for i := len(j.events) - 1; i >= 0; i-- {
		out = append(out, j.events[i])
		if n > 0 && len(out) == n {
			break
		}
	}
	return out, nil
}

func (j *MemoryJournal) SessionEvents(sessionID string) ([]model.RecognitionEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []model.RecognitionEvent
	for _, e := range j.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (j *MemoryJournal) Close() error { return nil }

// Sessions returns the journaled sessions in start order.
func (j *MemoryJournal) Sessions() []model.ScanSession {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]model.ScanSession, len(j.sessions))
	copy(out, j.sessions)
	return out
}

// Events returns the journaled events in record order.
func (j *MemoryJournal) Events() []model.RecognitionEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]model.RecognitionEvent, len(j.events))
	copy(out, j.events)
	return out
}
