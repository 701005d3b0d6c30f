package attend

import (
	"context"
	"time"
)

// AlertEvent describes a fired alert for downstream notifiers.
type AlertEvent struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject,omitempty"`
	TriggeredAt time.Time `json:"triggered_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	EvidenceRef string    `json:"evidence_ref,omitempty"`
}

// Notifier delivers fired alerts to an external channel. Notifiers are
// called off the pipeline goroutine with a bounded-timeout context; a
// delivery failure is logged and never blocks scanning.
type Notifier interface {
	Notify(ctx context.Context, ev AlertEvent) error
}

// NopNotifier discards alerts. Used when no notification channel is
// configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, AlertEvent) error { return nil }
