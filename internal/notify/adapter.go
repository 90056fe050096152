package notify

import (
	"context"

	"github.com/wariline/wariline/internal/accounts"
)

// AccountNotifier forwards account events to a Dispatcher.
type AccountNotifier struct {
	d Dispatcher
}

// ForAccounts adapts a Dispatcher to the narrow notifier contract the
// accounts and reconcile packages declare for themselves.
func ForAccounts(d Dispatcher) *AccountNotifier {
	return &AccountNotifier{d: d}
}

// Dispatch satisfies accounts.Notifier.
func (n *AccountNotifier) Dispatch(ctx context.Context, event accounts.Event) {
	if n == nil || n.d == nil {
		return
	}
	n.d.Dispatch(ctx, Event{
		Type:    EventType(event.Type),
		Account: event.Account,
		Reason:  event.Reason,
	})
}
