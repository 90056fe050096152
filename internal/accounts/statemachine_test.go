package accounts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wariline/wariline/internal/shared"
)

func TestAllowedTransitions(t *testing.T) {
	cases := []struct {
		status  AccountStatus
		trigger Trigger
		want    bool
	}{
		{StatusActive, TriggerRequestBlock, true},
		{StatusActive, TriggerActivateBlock, true},
		{StatusActive, TriggerClose, true},
		{StatusActive, TriggerRequestUnblock, false},
		{StatusActive, TriggerExpireBlock, false},
		{StatusBlocked, TriggerExpireBlock, true},
		{StatusBlocked, TriggerRequestUnblock, true},
		{StatusBlocked, TriggerClose, true},
		{StatusBlocked, TriggerRequestBlock, false},
		{StatusClosed, TriggerRequestBlock, false},
		{StatusClosed, TriggerClose, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Allowed(tc.status, tc.trigger), "%s + %s", tc.status, tc.trigger)
	}
}

func TestGuardBlockRejectsCheckingAccounts(t *testing.T) {
	acc := &Account{Type: TypeChecking, Status: StatusActive}
	require.ErrorIs(t, GuardBlock(acc), shared.ErrInvalidBlockRequest)

	// The type error wins even when the status would also be wrong.
	acc.Status = StatusBlocked
	require.ErrorIs(t, GuardBlock(acc), shared.ErrInvalidBlockRequest)
}

func TestGuardBlockRejectsNonActiveStatus(t *testing.T) {
	acc := &Account{Type: TypeSavings, Status: StatusBlocked}
	require.ErrorIs(t, GuardBlock(acc), shared.ErrAccountNotActive)

	acc.Status = StatusClosed
	require.ErrorIs(t, GuardBlock(acc), shared.ErrAccountNotActive)

	acc.Status = StatusActive
	require.NoError(t, GuardBlock(acc))
}

func TestGuardUnblock(t *testing.T) {
	acc := &Account{Type: TypeSavings, Status: StatusActive}
	require.ErrorIs(t, GuardUnblock(acc), shared.ErrAccountNotBlocked)

	acc.Status = StatusBlocked
	require.NoError(t, GuardUnblock(acc))
}

func scheduledAccount(startsAt, endsAt time.Time) *Account {
	scheduled := string(StatusBlocked)
	return &Account{
		Type:   TypeSavings,
		Status: StatusActive,
		Metadata: Metadata{
			ScheduledStatus: &scheduled,
			BlockStartsAt:   &startsAt,
			BlockEndsAt:     &endsAt,
		},
	}
}

func TestDecideActivationBoundaryIsInclusive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	due := scheduledAccount(now, now.Add(24*time.Hour))
	decision := Decide(due, now)
	require.Equal(t, TransitionActivate, decision.Kind)
	require.Equal(t, now, decision.At)

	future := scheduledAccount(now.Add(time.Second), now.Add(24*time.Hour))
	require.Equal(t, TransitionNone, Decide(future, now).Kind)
}

func TestDecideExpiryBoundaryIsInclusive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	endsAt := now

	acc := &Account{
		Type:     TypeSavings,
		Status:   StatusBlocked,
		Metadata: Metadata{BlockEndsAt: &endsAt},
	}
	decision := Decide(acc, now)
	require.Equal(t, TransitionExpire, decision.Kind)
	require.Equal(t, endsAt, decision.At)

	later := now.Add(time.Minute)
	acc.Metadata.BlockEndsAt = &later
	require.Equal(t, TransitionNone, Decide(acc, now).Kind)
}

func TestDecidePrefersActivationWhenBothBoundariesPassed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Start and end both in the past: the account still passes through the
	// blocked state rather than jumping straight to unblocked.
	acc := scheduledAccount(now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	decision := Decide(acc, now)
	require.Equal(t, TransitionActivate, decision.Kind)
}

func TestDecideIgnoresClosedAndUnscheduled(t *testing.T) {
	now := time.Now().UTC()

	require.Equal(t, TransitionNone, Decide(&Account{Status: StatusActive}, now).Kind)
	require.Equal(t, TransitionNone, Decide(&Account{Status: StatusClosed}, now).Kind)
	require.Equal(t, TransitionNone, Decide(&Account{Status: StatusBlocked}, now).Kind)
}
