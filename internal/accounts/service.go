package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wariline/wariline/internal/shared"
	"github.com/wariline/wariline/internal/transactions"
)

// TransactionRecorder is what the service needs from the transaction store:
// recording the opening deposit of a new account.
type TransactionRecorder interface {
	Create(ctx context.Context, txn *transactions.Transaction) error
}

// Notifier matches notify.Dispatcher without importing it; the service only
// emits, delivery is someone else's problem.
type Notifier interface {
	Dispatch(ctx context.Context, event Event)
}

// Event mirrors notify.Event to keep the dependency arrow pointing outward.
type Event struct {
	Type    string
	Account *Account
	Reason  string
}

// Domain event names shared with the notify package.
const (
	EventBlocked   = "account_blocked"
	EventUnblocked = "account_unblocked"
)

// DefaultCurrency is used when an open request does not name one.
const DefaultCurrency = "FCFA"

// Service owns the manual account operations. Scheduled transitions live in
// the reconcile package; both funnel writes through the same
// version-conditional repository methods.
type Service struct {
	repo     Repository
	txns     TransactionRecorder
	notifier Notifier
	clock    func() time.Time
}

// NewService constructs the account service.
func NewService(repo Repository, txns TransactionRecorder, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		txns:     txns,
		notifier: notifier,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if s != nil && clock != nil {
		s.clock = clock
	}
}

// OpenAccountRequest carries the parameters for opening an account. OwnerID
// may be left empty when HolderName is set; a handle is then derived from the
// name.
type OpenAccountRequest struct {
	OwnerID        string
	HolderName     string
	Type           AccountType
	OpeningBalance decimal.Decimal
	Currency       string
}

// Open creates an active account. An opening balance above zero is recorded
// as a validated initial deposit so the transaction history explains the
// balance from day one.
func (s *Service) Open(ctx context.Context, req OpenAccountRequest) (*Account, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("unknown account type %q", req.Type)
	}
	owner := req.OwnerID
	if owner == "" {
		slug := HolderSlug(req.HolderName)
		if slug == "" {
			return nil, fmt.Errorf("account owner required")
		}
		owner = fmt.Sprintf("%s-%s", slug, uuid.NewString()[:8])
	}
	now := s.clock()
	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	acc := &Account{
		ID:        uuid.NewString(),
		Number:    NewAccountNumber(),
		OwnerID:   owner,
		Type:      req.Type,
		Balance:   req.OpeningBalance,
		Currency:  currency,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	acc.Metadata.Touch(now)

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Create(ctx, acc); err != nil {
			return err
		}
		if req.OpeningBalance.IsPositive() {
			return s.txns.Create(ctx, &transactions.Transaction{
				ID:          uuid.NewString(),
				AccountID:   acc.ID,
				Type:        transactions.TypeDeposit,
				Amount:      req.OpeningBalance,
				Currency:    currency,
				Description: "Solde initial lors de la création du compte",
				Status:      transactions.StatusValidated,
				OccurredAt:  now,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open account: %w", err)
	}
	return acc, nil
}

// BlockRequest carries the parameters of a manual block.
type BlockRequest struct {
	Reason       string
	Duration     int
	Unit         DurationUnit
	ActivationAt time.Time
}

// RequestBlock schedules a block on a savings account. The status stays
// active: only the reconciliation job flips it to blocked once the activation
// time is reached, so the status enum is never occupied ahead of the instant
// it should take effect.
func (s *Service) RequestBlock(ctx context.Context, id string, req BlockRequest) (*Account, error) {
	if req.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", shared.ErrInvalidBlockRequest)
	}
	if !req.Unit.Valid() {
		return nil, fmt.Errorf("%w: unknown duration unit %q", shared.ErrInvalidBlockRequest, req.Unit)
	}

	var updated *Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		acc, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := GuardBlock(acc); err != nil {
			return err
		}

		now := s.clock()
		startsAt := req.ActivationAt
		if startsAt.IsZero() {
			startsAt = now
		}
		endsAt := req.Unit.AddTo(startsAt, req.Duration)
		scheduled := string(StatusBlocked)
		unit := string(req.Unit)
		duration := req.Duration
		reason := req.Reason

		expected := acc.Metadata.Version
		acc.Metadata.BlockReason = &reason
		acc.Metadata.BlockStartsAt = &startsAt
		acc.Metadata.BlockEndsAt = &endsAt
		acc.Metadata.BlockDuration = &duration
		acc.Metadata.BlockDurationUnit = &unit
		acc.Metadata.ScheduledStatus = &scheduled
		acc.Metadata.Touch(now)
		acc.UpdatedAt = now

		if err := repo.UpdateTransition(ctx, acc, expected); err != nil {
			return err
		}
		updated = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RequestUnblock lifts a block manually, any time before or after expiry.
func (s *Service) RequestUnblock(ctx context.Context, id, reason string) (*Account, error) {
	var updated *Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		acc, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := GuardUnblock(acc); err != nil {
			return err
		}

		now := s.clock()
		expected := acc.Metadata.Version
		acc.Status = StatusActive
		acc.Metadata.UnblockReason = &reason
		acc.Metadata.UnblockedAt = &now
		acc.Metadata.ClearSchedule()
		acc.Metadata.Touch(now)
		acc.UpdatedAt = now

		if err := repo.UpdateTransition(ctx, acc, expected); err != nil {
			return err
		}
		updated = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.Dispatch(ctx, Event{Type: EventUnblocked, Account: updated, Reason: reason})
	}
	return updated, nil
}

// Close soft-deletes the account: the row stays in the operational store with
// a tombstone, only archival ever removes it physically.
func (s *Service) Close(ctx context.Context, id string) (*Account, error) {
	var updated *Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		acc, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if !Allowed(acc.Status, TriggerClose) {
			return fmt.Errorf("account %s cannot be closed from status %s", acc.Number, acc.Status)
		}

		now := s.clock()
		expected := acc.Metadata.Version
		acc.Status = StatusClosed
		acc.Metadata.Touch(now)
		acc.UpdatedAt = now
		deleted := now
		acc.DeletedAt = &deleted

		if err := repo.SoftDelete(ctx, acc, expected); err != nil {
			return err
		}
		updated = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Get returns one account by id.
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.repo.Get(ctx, id)
}

// GetByNumber returns one account by its human-facing number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Account, error) {
	return s.repo.GetByNumber(ctx, number)
}

// List returns accounts matching the filter, closed ones excluded by default.
func (s *Service) List(ctx context.Context, req ListAccountsRequest) ([]Account, error) {
	return s.repo.List(ctx, req)
}
