// Package notify delivers probe alerts to operators.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

// Noop drops every alert. It is used when no transport is configured.
type Noop struct{}

// Notify implements monitor.Notifier.
func (Noop) Notify(context.Context, string) error { return nil }

// Multi fans an alert out to every notifier and joins their failures.
type Multi []monitor.Notifier

// Notify implements monitor.Notifier.
func (m Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for i, n := range m {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, fmt.Errorf("notifier %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Combine returns the cheapest notifier covering ns: Noop when empty, the
// single notifier when only one is set, Multi otherwise.
func Combine(ns ...monitor.Notifier) monitor.Notifier {
	out := make(Multi, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	switch len(out) {
	case 0:
		return Noop{}
	case 1:
		return out[0]
	default:
		return out
	}
}
