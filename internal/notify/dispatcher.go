package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wariline/wariline/internal/accounts"
)

// EventType enumerates domain events emitted by account transitions.
type EventType string

const (
	EventAccountBlocked   EventType = "account_blocked"
	EventAccountUnblocked EventType = "account_unblocked"
)

// Event carries one account transition notification.
type Event struct {
	Type    EventType
	Account *accounts.Account
	Reason  string
}

// Dispatcher delivers transition notifications. Implementations are fire and
// forget: Dispatch never returns an error because a notification failure must
// not block or roll back a state transition.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event)
}

// EmailEnqueuer is the queue-side contract, satisfied by the jobs client.
type EmailEnqueuer interface {
	EnqueueAccountEmail(ctx context.Context, to, subject, body string) error
}

// QueueDispatcher hands events to the background mail queue.
type QueueDispatcher struct {
	enqueuer EmailEnqueuer
	logger   *slog.Logger
}

// NewQueueDispatcher constructs a QueueDispatcher.
func NewQueueDispatcher(enqueuer EmailEnqueuer, logger *slog.Logger) *QueueDispatcher {
	return &QueueDispatcher{enqueuer: enqueuer, logger: logger}
}

// Dispatch enqueues a notification email for the account owner. Failures are
// logged and dropped.
func (d *QueueDispatcher) Dispatch(ctx context.Context, event Event) {
	if d == nil || d.enqueuer == nil || event.Account == nil {
		return
	}
	var subject, body string
	switch event.Type {
	case EventAccountBlocked:
		subject = "Votre compte a été bloqué"
		body = fmt.Sprintf("Le compte %s est bloqué. Motif: %s", event.Account.Number, event.Reason)
	case EventAccountUnblocked:
		subject = "Votre compte a été débloqué"
		body = fmt.Sprintf("Le compte %s est de nouveau actif. Motif: %s", event.Account.Number, event.Reason)
	default:
		return
	}
	if err := d.enqueuer.EnqueueAccountEmail(ctx, event.Account.OwnerID, subject, body); err != nil {
		d.log().Warn("enqueue notification",
			slog.String("event", string(event.Type)),
			slog.String("numero_compte", event.Account.Number),
			slog.Any("error", err))
	}
}

func (d *QueueDispatcher) log() *slog.Logger {
	if d != nil && d.logger != nil {
		return d.logger
	}
	return slog.Default()
}

// NopDispatcher drops every event.
type NopDispatcher struct{}

// Dispatch implements Dispatcher.
func (NopDispatcher) Dispatch(context.Context, Event) {}
