package accounts

import (
	"time"

	"github.com/wariline/wariline/internal/shared"
)

// Trigger is an input that may move an account to another state.
type Trigger string

const (
	// TriggerRequestBlock schedules a block on an active savings account.
	TriggerRequestBlock Trigger = "request_block"
	// TriggerActivateBlock flips a scheduled block to blocked. Scheduler-only.
	TriggerActivateBlock Trigger = "activate_block"
	// TriggerExpireBlock ends a blocked period. Scheduler-only.
	TriggerExpireBlock Trigger = "expire_block"
	// TriggerRequestUnblock lifts a block manually.
	TriggerRequestUnblock Trigger = "request_unblock"
	// TriggerClose closes the account (soft delete).
	TriggerClose Trigger = "close"
)

// transitionTable is the exhaustive legality map: status × trigger. Anything
// absent is forbidden. Keeping it as data instead of scattered guards makes
// every reachable transition reviewable in one place.
var transitionTable = map[AccountStatus]map[Trigger]AccountStatus{
	StatusActive: {
		TriggerRequestBlock:  StatusActive, // shadow state only, status unchanged
		TriggerActivateBlock: StatusBlocked,
		TriggerClose:         StatusClosed,
	},
	StatusBlocked: {
		TriggerExpireBlock:    StatusActive,
		TriggerRequestUnblock: StatusActive,
		TriggerClose:          StatusClosed,
	},
	StatusClosed: {},
}

// Allowed reports whether the trigger is legal from the given status.
func Allowed(status AccountStatus, trigger Trigger) bool {
	triggers, ok := transitionTable[status]
	if !ok {
		return false
	}
	_, ok = triggers[trigger]
	return ok
}

// GuardBlock validates a manual block request. Type is checked before status
// so a blocked checking account still reports the type error.
func GuardBlock(acc *Account) error {
	if !acc.Type.Blockable() {
		return shared.ErrInvalidBlockRequest
	}
	if !Allowed(acc.Status, TriggerRequestBlock) {
		return shared.ErrAccountNotActive
	}
	return nil
}

// GuardUnblock validates a manual unblock request.
func GuardUnblock(acc *Account) error {
	if !Allowed(acc.Status, TriggerRequestUnblock) {
		return shared.ErrAccountNotBlocked
	}
	return nil
}

// TransitionKind classifies what the scheduler should do with an account.
type TransitionKind int

const (
	// TransitionNone means the account needs nothing right now.
	TransitionNone TransitionKind = iota
	// TransitionActivate means a scheduled block has reached its activation time.
	TransitionActivate
	// TransitionExpire means a blocked period has reached its expiry time.
	TransitionExpire
)

// Transition is the decision for one account at one instant.
type Transition struct {
	Kind TransitionKind
	// At is the boundary that triggered the decision (activation or expiry).
	At time.Time
}

// Decide computes the automatic transition due for an account at the given
// instant. It is pure: no I/O, no clock. Boundaries are inclusive, an
// activation or expiry timestamped exactly "now" fires.
//
// When both the activation and expiry boundaries have passed, Decide returns
// the activation: a scheduled block never skips straight to unblocked because
// the blocked interval is a recorded fact. The expiry is picked up on
// re-evaluation once the account is blocked, in the same reconciliation pass.
func Decide(acc *Account, now time.Time) Transition {
	switch {
	case acc.ScheduledBlockPending():
		if acc.Metadata.BlockStartsAt != nil && !acc.Metadata.BlockStartsAt.After(now) {
			return Transition{Kind: TransitionActivate, At: *acc.Metadata.BlockStartsAt}
		}
	case acc.Status == StatusBlocked:
		if acc.Metadata.BlockEndsAt != nil && !acc.Metadata.BlockEndsAt.After(now) {
			return Transition{Kind: TransitionExpire, At: *acc.Metadata.BlockEndsAt}
		}
	}
	return Transition{Kind: TransitionNone}
}
