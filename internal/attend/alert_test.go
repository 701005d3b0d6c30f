package attend_test

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"facemark/internal/attend"
	"facemark/internal/model"
	"facemark/internal/testutil"
)

func newAlertManager(store attend.EvidenceStore, notifier attend.Notifier, clock attend.Clock) *attend.AlertManager {
	return attend.NewAlertManager(store, notifier, clock, testutil.NewStubIDGenerator(),
		attend.NewNopLogger(), 30*time.Second, 10*time.Second)
}

func testSnapshot() image.Image {
	return image.NewGray(image.Rect(0, 0, 64, 48))
}

func TestAlertManager_Trigger(t *testing.T) {
	face := model.Rect{X: 10, Y: 10, W: 20, H: 20}

	t.Run("first trigger activates and saves evidence", func(t *testing.T) {
		clock := testutil.FixedClock()
		store := testutil.NewMemoryEvidence()
		m := newAlertManager(store, nil, clock)

		rec, fired := m.Trigger(context.Background(), testSnapshot(), face, "physics")
		if !fired {
			t.Fatal("Trigger() fired = false on an idle manager")
		}
		if rec.EvidenceRef == "" {
			t.Error("Trigger() returned a record with no evidence reference")
		}
		if want := clock.Now().Add(30 * time.Second); !rec.ExpiresAt.Equal(want) {
			t.Errorf("ExpiresAt = %v, want %v", rec.ExpiresAt, want)
		}
		if !m.Active() {
			t.Error("Active() = false right after a permitted trigger")
		}
		if got := len(store.Saved()); got != 1 {
			t.Errorf("saved %d snapshots, want 1", got)
		}
	})

	t.Run("trigger inside the cooldown is a no-op", func(t *testing.T) {
		clock := testutil.FixedClock()
		store := testutil.NewMemoryEvidence()
		m := newAlertManager(store, nil, clock)

		m.Trigger(context.Background(), testSnapshot(), face, "physics")
		clock.Advance(5 * time.Second)

		rec, fired := m.Trigger(context.Background(), testSnapshot(), face, "physics")
		if fired {
			t.Fatal("Trigger() fired = true inside the cooldown window")
		}
		if rec != nil {
			t.Errorf("Trigger() record = %+v for a suppressed trigger, want nil", rec)
		}
		if got := len(store.Saved()); got != 1 {
			t.Errorf("saved %d snapshots, want 1; a suppressed trigger must not write evidence", got)
		}
	})

	t.Run("permitted re-trigger extends the expiry", func(t *testing.T) {
		clock := testutil.FixedClock()
		start := clock.Now()
		store := testutil.NewMemoryEvidence()
		m := newAlertManager(store, nil, clock)

		m.Trigger(context.Background(), testSnapshot(), face, "physics")

		clock.Advance(11 * time.Second)
		rec, fired := m.Trigger(context.Background(), testSnapshot(), face, "physics")
		if !fired {
			t.Fatal("Trigger() fired = false after the cooldown elapsed")
		}
		if want := start.Add(41 * time.Second); !rec.ExpiresAt.Equal(want) {
			t.Errorf("ExpiresAt = %v, want %v", rec.ExpiresAt, want)
		}
		if got := len(store.Saved()); got != 2 {
			t.Errorf("saved %d snapshots, want 2; each permitted trigger snapshots fresh evidence", got)
		}

		// The first trigger's expiry (start+30) is superseded. At
		// start+31 the alert must still be up; only start+41 ends it.
		if m.ExpireIfDue(start.Add(31 * time.Second)) {
			t.Error("ExpireIfDue() = true at the superseded trigger's expiry")
		}
		if !m.Active() {
			t.Error("Active() = false before the extended expiry")
		}
		if !m.ExpireIfDue(start.Add(41 * time.Second)) {
			t.Error("ExpireIfDue() = false at the extended expiry")
		}
		if m.Active() {
			t.Error("Active() = true after expiry")
		}
	})

	t.Run("evidence write failure leaves the alert active", func(t *testing.T) {
		clock := testutil.FixedClock()
		store := testutil.NewMemoryEvidence()
		store.SaveErr = errors.New("disk full")
		m := newAlertManager(store, nil, clock)

		rec, fired := m.Trigger(context.Background(), testSnapshot(), face, "physics")
		if !fired {
			t.Fatal("Trigger() fired = false when only the evidence write failed")
		}
		if rec.EvidenceRef != "" {
			t.Errorf("EvidenceRef = %q, want empty after a failed write", rec.EvidenceRef)
		}
		if !m.Active() {
			t.Error("Active() = false; a failed evidence write must not lose the alert")
		}
	})

	t.Run("delivers to the notifier", func(t *testing.T) {
		clock := testutil.FixedClock()
		store := testutil.NewMemoryEvidence()
		notifier := testutil.NewRecordingNotifier()
		m := newAlertManager(store, notifier, clock)

		rec, _ := m.Trigger(context.Background(), testSnapshot(), face, "physics")

		// Delivery runs off the trigger goroutine.
		deadline := time.Now().Add(2 * time.Second)
		for len(notifier.Events()) == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		events := notifier.Events()
		if len(events) != 1 {
			t.Fatalf("notifier received %d events, want 1", len(events))
		}
		if events[0].ID != rec.ID {
			t.Errorf("notified alert %s, want %s", events[0].ID, rec.ID)
		}
		if events[0].Subject != "physics" {
			t.Errorf("notified subject %q, want physics", events[0].Subject)
		}
	})
}

func TestAlertManager_Expiry(t *testing.T) {
	face := model.Rect{X: 10, Y: 10, W: 20, H: 20}

	t.Run("lazy expiry without a poller", func(t *testing.T) {
		clock := testutil.FixedClock()
		m := newAlertManager(testutil.NewMemoryEvidence(), nil, clock)

		m.Trigger(context.Background(), testSnapshot(), face, "")
		clock.Advance(31 * time.Second)

		if m.Active() {
			t.Error("Active() = true past the expiry; overdue expiry must apply lazily")
		}
		if m.Current() != nil {
			t.Error("Current() != nil past the expiry")
		}
	})

	t.Run("idle manager never expires", func(t *testing.T) {
		clock := testutil.FixedClock()
		m := newAlertManager(testutil.NewMemoryEvidence(), nil, clock)
		if m.ExpireIfDue(clock.Now()) {
			t.Error("ExpireIfDue() = true on an idle manager")
		}
	})
}

func TestAlertManager_Reset(t *testing.T) {
	face := model.Rect{X: 10, Y: 10, W: 20, H: 20}
	clock := testutil.FixedClock()
	m := newAlertManager(testutil.NewMemoryEvidence(), nil, clock)

	m.Trigger(context.Background(), testSnapshot(), face, "")
	m.Reset()
	if m.Active() {
		t.Fatal("Active() = true after Reset()")
	}

	// The cooldown survives the reset, so a face reappearing right away
	// is still spaced by the window.
	clock.Advance(5 * time.Second)
	if _, fired := m.Trigger(context.Background(), testSnapshot(), face, ""); fired {
		t.Error("Trigger() fired = true inside the cooldown after a reset")
	}
	clock.Advance(5 * time.Second)
	if _, fired := m.Trigger(context.Background(), testSnapshot(), face, ""); !fired {
		t.Error("Trigger() fired = false after the cooldown elapsed")
	}
}

func TestAlertManager_Current(t *testing.T) {
	face := model.Rect{X: 10, Y: 10, W: 20, H: 20}
	clock := testutil.FixedClock()
	m := newAlertManager(testutil.NewMemoryEvidence(), nil, clock)

	if m.Current() != nil {
		t.Fatal("Current() != nil on an idle manager")
	}

	rec, _ := m.Trigger(context.Background(), testSnapshot(), face, "")
	cur := m.Current()
	if cur == nil {
		t.Fatal("Current() = nil while active")
	}
	if cur.ID != rec.ID {
		t.Errorf("Current().ID = %s, want %s", cur.ID, rec.ID)
	}

	// Mutating the returned copy must not leak into the manager.
	cur.EvidenceRef = "tampered"
	if again := m.Current(); again.EvidenceRef == "tampered" {
		t.Error("Current() returned shared state, want a copy")
	}
}
