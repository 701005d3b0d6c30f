package attend

import (
	"context"
	"image"
	"sync"
	"time"

	"facemark/internal/model"
)

// alertKey is the cooldown key for unrecognized-face alerts. All unknown
// faces share one class; the gate is keyed so that further alert classes
// can coexist later without a second gate.
const alertKey = "unknown"

// notifyTimeout bounds one notifier delivery attempt.
const notifyTimeout = 5 * time.Second

// AlertManager is the unauthorized-face alert state machine. It is either
// Idle or Active. A trigger that passes the cooldown gate activates the
// alert, snapshots evidence and schedules expiry; a trigger inside the
// cooldown window is a complete no-op. A permitted trigger while already
// Active saves fresh evidence and pushes the expiry out again, so the
// alert stays up as long as an unrecognized face keeps reappearing.
type AlertManager struct {
	store    EvidenceStore
	notifier Notifier
	gate     *CooldownGate
	clock    Clock
	ids      IDGenerator
	log      Logger
	duration time.Duration

	mu      sync.Mutex
	active  bool
	current *model.AlertRecord // Latest permitted trigger while active
}

// NewAlertManager creates an alert manager. duration is how long an alert
// stays active after its latest permitted trigger; cooldown is the
// minimum spacing between permitted triggers.
func NewAlertManager(store EvidenceStore, notifier Notifier, clock Clock, ids IDGenerator, log Logger, duration, cooldown time.Duration) *AlertManager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = NewNopLogger()
	}
	return &AlertManager{
		store:    store,
		notifier: notifier,
		gate:     NewCooldownGate(cooldown),
		clock:    clock,
		ids:      ids,
		log:      log,
		duration: duration,
	}
}

// Trigger attempts to raise the alert for an unrecognized face. It
// returns the alert record and true when the trigger was permitted, or
// nil and false when the cooldown suppressed it. Evidence is written
// outside the state lock; a failed evidence write leaves the alert active
// with an empty evidence reference.
func (m *AlertManager) Trigger(ctx context.Context, frame image.Image, face model.Rect, subject string) (*model.AlertRecord, bool) {
	now := m.clock.Now()

	m.mu.Lock()
	if !m.gate.TryFire(alertKey, now) {
		m.mu.Unlock()
		return nil, false
	}
	rec := &model.AlertRecord{
		ID:          m.ids.New(),
		TriggeredAt: now,
		ExpiresAt:   now.Add(m.duration),
		Face:        face,
	}
	m.active = true
	m.current = rec
	m.mu.Unlock()

	if ref, err := m.store.Save(*rec, frame); err != nil {
		m.log.Error("failed to save alert evidence", "alert", rec.ID, "error", err)
	} else {
		rec.EvidenceRef = ref
		m.mu.Lock()
		if m.current != nil && m.current.ID == rec.ID {
			m.current.EvidenceRef = ref
		}
		m.mu.Unlock()
	}

	ev := AlertEvent{
		ID:          rec.ID,
		Subject:     subject,
		TriggeredAt: rec.TriggeredAt,
		ExpiresAt:   rec.ExpiresAt,
		EvidenceRef: rec.EvidenceRef,
	}
	go m.deliver(ev)

	copied := *rec
	return &copied, true
}

func (m *AlertManager) deliver(ev AlertEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := m.notifier.Notify(ctx, ev); err != nil {
		m.log.Warn("alert notification failed", "alert", ev.ID, "error", err)
	}
}

// ExpireIfDue transitions Active -> Idle when the latest trigger's expiry
// has passed. A trigger that was superseded by a newer one cannot expire
// the alert: only the current expiry counts. Returns true when the alert
// expired on this call.
func (m *AlertManager) ExpireIfDue(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expireLocked(now)
}

func (m *AlertManager) expireLocked(now time.Time) bool {
	if !m.active || m.current == nil {
		return false
	}
	if now.Before(m.current.ExpiresAt) {
		return false
	}
	m.active = false
	m.current = nil
	return true
}

// Active reports whether the alert is up. An overdue expiry is applied
// lazily, so Active stays correct even when no expiry poller is running.
func (m *AlertManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(m.clock.Now())
	return m.active
}

// Current returns a copy of the latest trigger's record while the alert
// is active, or nil when Idle.
func (m *AlertManager) Current() *model.AlertRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(m.clock.Now())
	if !m.active || m.current == nil {
		return nil
	}
	copied := *m.current
	return &copied
}

// Reset is the manual operator action: back to Idle immediately. The
// cooldown state is kept, so a face that re-appears right after a reset
// is still spaced by the cooldown window.
func (m *AlertManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
	m.current = nil
}

// Recent returns fired alerts newest-first from the evidence store.
// n <= 0 returns all.
func (m *AlertManager) Recent(n int) ([]model.AlertRecord, error) {
	return m.store.Recent(n)
}
