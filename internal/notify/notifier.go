// Package notify defines the external notification collaborator. Delivery
// (SMS, push, whatever) happens elsewhere; the engine only emits the
// up-next signal and records the outcome on the signup.
package notify

import (
	"context"

	"github.com/openmiclive/lineup/internal/domain"
)

type Notifier interface {
	// NotifyUpNext signals that the participant has been promoted to the
	// next slot. A failure must never block the promotion itself.
	NotifyUpNext(ctx context.Context, su domain.Signup) error
	Close() error
}

type noopNotifier struct{}

// NewNoop returns a notifier that does nothing, for setups without a
// notification pipeline.
func NewNoop() Notifier {
	return noopNotifier{}
}

func (noopNotifier) NotifyUpNext(context.Context, domain.Signup) error { return nil }

func (noopNotifier) Close() error { return nil }
