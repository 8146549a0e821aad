package alerts

import (
	"context"
	"errors"
)

// Multi fans an alert out to every enabled notifier.
type Multi []Notifier

func (m Multi) IsEnabled() bool {
	for _, n := range m {
		if n.IsEnabled() {
			return true
		}
	}

	return false
}

// Notify delivers to each enabled notifier and joins the failures. A
// notifier skipping the alert for cooldown is not a failure.
func (m Multi) Notify(ctx context.Context, alert *Alert) error {
	var errs []error

	for _, n := range m {
		if !n.IsEnabled() {
			continue
		}

		// each backend gets its own copy, they fill in defaults
		a := *alert

		if err := n.Notify(ctx, &a); err != nil && !errors.Is(err, ErrCooldown) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
