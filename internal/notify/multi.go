package notify

import (
	"context"
	"errors"

	"facemark/internal/attend"
)

// Multi fans an alert out to several notifiers. Every notifier is
// attempted even when an earlier one fails; the joined error reports all
// failures.
type Multi []attend.Notifier

var _ attend.Notifier = (Multi)(nil)

func (m Multi) Notify(ctx context.Context, ev attend.AlertEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
