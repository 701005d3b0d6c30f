package journal

import (
	"path/filepath"
	"testing"
	"time"

	"facemark/internal/attend"
	"facemark/internal/model"
)

// newTestJournal creates an in-memory journal with the schema applied.
func newTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()

	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() {
		j.Close()
	})
	return j
}

func testSession(id string, startedAt time.Time) model.ScanSession {
	return model.ScanSession{
		ID:        id,
		Subject:   "physics",
		Mode:      attend.ModeRecognition,
		StartedAt: startedAt,
	}
}

func testEvent(id, sessionID string, at time.Time) model.RecognitionEvent {
	return model.RecognitionEvent{
		ID:         id,
		SessionID:  sessionID,
		At:         at,
		Subject:    "physics",
		StudentID:  "42",
		Name:       "Ada",
		Confidence: 14.5,
		Status:     model.EventRecognized,
		Face:       model.Rect{X: 10, Y: 20, W: 96, H: 96},
	}
}

func TestSQLiteJournal_Sessions(t *testing.T) {
	t.Run("round-trips a session", func(t *testing.T) {
		j := newTestJournal(t)

		started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		if err := j.StartSession(testSession("sess-1", started)); err != nil {
			t.Fatalf("StartSession() error = %v", err)
		}

		sessions, err := j.Sessions(0)
		if err != nil {
			t.Fatalf("Sessions() error = %v", err)
		}
		if len(sessions) != 1 {
			t.Fatalf("got %d sessions, want 1", len(sessions))
		}
		s := sessions[0]
		if s.ID != "sess-1" {
			t.Errorf("ID = %q, want sess-1", s.ID)
		}
		if s.Subject != "physics" {
			t.Errorf("Subject = %q, want physics", s.Subject)
		}
		if s.Mode != attend.ModeRecognition {
			t.Errorf("Mode = %q, want %q", s.Mode, attend.ModeRecognition)
		}
		if s.StartedAt.Unix() != started.Unix() {
			t.Errorf("StartedAt = %v, want %v", s.StartedAt, started)
		}
		if s.StoppedAt != nil {
			t.Errorf("StoppedAt = %v, want nil for a running session", s.StoppedAt)
		}
	})

	t.Run("EndSession sets the stop time", func(t *testing.T) {
		j := newTestJournal(t)

		started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		stopped := started.Add(2 * time.Minute)
		if err := j.StartSession(testSession("sess-1", started)); err != nil {
			t.Fatalf("StartSession() error = %v", err)
		}
		if err := j.EndSession("sess-1", stopped); err != nil {
			t.Fatalf("EndSession() error = %v", err)
		}

		sessions, err := j.Sessions(0)
		if err != nil {
			t.Fatalf("Sessions() error = %v", err)
		}
		if sessions[0].StoppedAt == nil {
			t.Fatal("StoppedAt is nil after EndSession")
		}
		if sessions[0].StoppedAt.Unix() != stopped.Unix() {
			t.Errorf("StoppedAt = %v, want %v", sessions[0].StoppedAt, stopped)
		}
	})

	t.Run("EndSession fails for unknown session", func(t *testing.T) {
		j := newTestJournal(t)

		if err := j.EndSession("nope", time.Now()); err == nil {
			t.Error("EndSession() expected error for unknown session")
		}
	})

	t.Run("lists newest first with limit", func(t *testing.T) {
		j := newTestJournal(t)

		base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			s := testSession("sess-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
			if err := j.StartSession(s); err != nil {
				t.Fatalf("StartSession() error = %v", err)
			}
		}

		sessions, err := j.Sessions(2)
		if err != nil {
			t.Fatalf("Sessions() error = %v", err)
		}
		if len(sessions) != 2 {
			t.Fatalf("got %d sessions, want 2", len(sessions))
		}
		if sessions[0].ID != "sess-c" || sessions[1].ID != "sess-b" {
			t.Errorf("order = %s, %s, want sess-c, sess-b", sessions[0].ID, sessions[1].ID)
		}
	})

	t.Run("duplicate session id fails", func(t *testing.T) {
		j := newTestJournal(t)

		started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		if err := j.StartSession(testSession("sess-1", started)); err != nil {
			t.Fatalf("first StartSession() error = %v", err)
		}
		if err := j.StartSession(testSession("sess-1", started)); err == nil {
			t.Error("second StartSession() expected error for duplicate id")
		}
	})
}

func TestSQLiteJournal_Events(t *testing.T) {
	t.Run("round-trips an event", func(t *testing.T) {
		j := newTestJournal(t)

		at := time.Date(2026, 3, 2, 9, 0, 5, 0, time.UTC)
		if err := j.StartSession(testSession("sess-1", at)); err != nil {
			t.Fatalf("StartSession() error = %v", err)
		}
		if err := j.RecordEvent(testEvent("ev-1", "sess-1", at)); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}

		events, err := j.SessionEvents("sess-1")
		if err != nil {
			t.Fatalf("SessionEvents() error = %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1", len(events))
		}
		e := events[0]
		if e.ID != "ev-1" || e.SessionID != "sess-1" {
			t.Errorf("ids = %q/%q, want ev-1/sess-1", e.ID, e.SessionID)
		}
		if e.At.Unix() != at.Unix() {
			t.Errorf("At = %v, want %v", e.At, at)
		}
		if e.StudentID != "42" || e.Name != "Ada" {
			t.Errorf("student = %q/%q, want 42/Ada", e.StudentID, e.Name)
		}
		if e.Confidence != 14.5 {
			t.Errorf("Confidence = %v, want 14.5", e.Confidence)
		}
		if e.Status != model.EventRecognized {
			t.Errorf("Status = %q, want %q", e.Status, model.EventRecognized)
		}
		if e.Face != (model.Rect{X: 10, Y: 20, W: 96, H: 96}) {
			t.Errorf("Face = %+v", e.Face)
		}
	})

	t.Run("rejects event for unknown session", func(t *testing.T) {
		j := newTestJournal(t)

		err := j.RecordEvent(testEvent("ev-1", "missing", time.Now()))
		if err == nil {
			t.Error("RecordEvent() expected foreign key error for unknown session")
		}
	})

	t.Run("session events are oldest first", func(t *testing.T) {
		j := newTestJournal(t)

		base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		if err := j.StartSession(testSession("sess-1", base)); err != nil {
			t.Fatalf("StartSession() error = %v", err)
		}
		for i := 0; i < 3; i++ {
			ev := testEvent("ev-"+string(rune('a'+i)), "sess-1", base.Add(time.Duration(i)*time.Second))
			if err := j.RecordEvent(ev); err != nil {
				t.Fatalf("RecordEvent() error = %v", err)
			}
		}

		events, err := j.SessionEvents("sess-1")
		if err != nil {
			t.Fatalf("SessionEvents() error = %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("got %d events, want 3", len(events))
		}
		for i, want := range []string{"ev-a", "ev-b", "ev-c"} {
			if events[i].ID != want {
				t.Errorf("events[%d].ID = %q, want %q", i, events[i].ID, want)
			}
		}
	})

	t.Run("recent events are newest first with limit", func(t *testing.T) {
		j := newTestJournal(t)

		base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		if err := j.StartSession(testSession("sess-1", base)); err != nil {
			t.Fatalf("StartSession() error = %v", err)
		}
		for i := 0; i < 4; i++ {
			ev := testEvent("ev-"+string(rune('a'+i)), "sess-1", base.Add(time.Duration(i)*time.Second))
			if err := j.RecordEvent(ev); err != nil {
				t.Fatalf("RecordEvent() error = %v", err)
			}
		}

		events, err := j.RecentEvents(2)
		if err != nil {
			t.Fatalf("RecentEvents() error = %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("got %d events, want 2", len(events))
		}
		if events[0].ID != "ev-d" || events[1].ID != "ev-c" {
			t.Errorf("order = %s, %s, want ev-d, ev-c", events[0].ID, events[1].ID)
		}

		all, err := j.RecentEvents(0)
		if err != nil {
			t.Fatalf("RecentEvents(0) error = %v", err)
		}
		if len(all) != 4 {
			t.Errorf("RecentEvents(0) returned %d events, want all 4", len(all))
		}
	})

	t.Run("same-second events keep insertion order", func(t *testing.T) {
		j := newTestJournal(t)

		at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		if err := j.StartSession(testSession("sess-1", at)); err != nil {
			t.Fatalf("StartSession() error = %v", err)
		}
		for _, id := range []string{"ev-a", "ev-b", "ev-c"} {
			if err := j.RecordEvent(testEvent(id, "sess-1", at)); err != nil {
				t.Fatalf("RecordEvent() error = %v", err)
			}
		}

		events, err := j.RecentEvents(0)
		if err != nil {
			t.Fatalf("RecentEvents() error = %v", err)
		}
		if events[0].ID != "ev-c" || events[2].ID != "ev-a" {
			t.Errorf("order = %s, %s, %s, want ev-c, ev-b, ev-a",
				events[0].ID, events[1].ID, events[2].ID)
		}
	})
}

func TestSQLiteJournal_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if err := j.StartSession(testSession("sess-1", started)); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if err := j.RecordEvent(testEvent("ev-1", "sess-1", started)); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopen and verify the data survived.
	j2, err := Open(path)
	if err != nil {
		t.Fatalf("reopening journal: %v", err)
	}
	defer j2.Close()

	events, err := j2.RecentEvents(0)
	if err != nil {
		t.Fatalf("RecentEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events after reopen, want 1", len(events))
	}
	if events[0].ID != "ev-1" {
		t.Errorf("event ID = %q, want ev-1", events[0].ID)
	}
}
