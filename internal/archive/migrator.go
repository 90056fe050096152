package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wariline/wariline/internal/accounts"
	"github.com/wariline/wariline/internal/platform/db"
	"github.com/wariline/wariline/internal/shared"
	"github.com/wariline/wariline/internal/transactions"
)

// AccountStore is what the migrator needs from the operational account
// store: a fresh read before migrating, and a create when restoring.
type AccountStore interface {
	Get(ctx context.Context, id string) (*accounts.Account, error)
	Create(ctx context.Context, acc *accounts.Account) error
}

// TransactionStore is what the migrator needs from the operational
// transaction store.
type TransactionStore interface {
	Create(ctx context.Context, txn *transactions.Transaction) error
	ListByAccount(ctx context.Context, accountID string) ([]transactions.Transaction, error)
}

// PrimaryPurger removes an account (and optionally its transactions) from the
// operational store in one transaction. The delete carries the same version
// condition as every other transition write: a row that moved on since the
// caller read it stays put and the purge reports ErrConcurrentModification.
type PrimaryPurger interface {
	Purge(ctx context.Context, accountID string, expectedVersion int64, includeTransactions bool) error
}

type pgxPurger struct {
	pool *pgxpool.Pool
}

// NewPurger builds the pgx purger on the primary pool. The account row and
// its transactions go in one transaction: a half-purged account would make a
// migration re-run overwrite the archived transaction set with nothing.
func NewPurger(pool *pgxpool.Pool) PrimaryPurger {
	return &pgxPurger{pool: pool}
}

func (p *pgxPurger) Purge(ctx context.Context, accountID string, expectedVersion int64, includeTransactions bool) error {
	return db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		// Account row first: a version miss rolls the whole purge back
		// before any transaction row is touched.
		tag, err := tx.Exec(ctx, `
			DELETE FROM comptes
			WHERE id = $1
			  AND COALESCE((metadonnees->>'version')::bigint, 0) = $2
		`, accountID, expectedVersion)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrConcurrentModification
		}
		if includeTransactions {
			_, err = tx.Exec(ctx, `DELETE FROM transactions WHERE compte_id = $1`, accountID)
		}
		return err
	})
}

// Migrator moves accounts between the operational store and the archive
// store. The two stores are independent databases, so no step is globally
// atomic: the copy always lands before the source delete, and every write is
// idempotent by original id, which makes any partial failure recoverable by
// re-running the same call.
type Migrator struct {
	Accounts         AccountStore
	Transactions     TransactionStore
	ArchiveRepo      Repository
	Purger           PrimaryPurger
	CopyTransactions bool
	Logger           *slog.Logger
	clock            func() time.Time
}

// MigratorConfig collects the migrator dependencies.
type MigratorConfig struct {
	Accounts         AccountStore
	Transactions     TransactionStore
	ArchiveRepo      Repository
	Purger           PrimaryPurger
	CopyTransactions bool
	Logger           *slog.Logger
}

// NewMigrator constructs a Migrator.
func NewMigrator(cfg MigratorConfig) *Migrator {
	return &Migrator{
		Accounts:         cfg.Accounts,
		Transactions:     cfg.Transactions,
		ArchiveRepo:      cfg.ArchiveRepo,
		Purger:           cfg.Purger,
		CopyTransactions: cfg.CopyTransactions,
		Logger:           cfg.Logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (m *Migrator) WithClock(clock func() time.Time) {
	if m != nil && clock != nil {
		m.clock = clock
	}
}

// Archive copies the account snapshot (and, per policy, its transactions)
// into the archive store, then deletes the source rows. The delete is the
// last step: a crash anywhere earlier leaves the operational record intact
// and the call is simply retried. Both the re-read here and the purge carry
// the version the caller decided on; an account that a concurrent writer
// moved on is left alone and the call fails with ErrConcurrentModification.
func (m *Migrator) Archive(ctx context.Context, acc *accounts.Account, reason Reason) (*ArchivedAccount, error) {
	now := m.clock()

	current, err := m.Accounts.Get(ctx, acc.ID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		// An earlier call already moved the account. Return the archived
		// record as-is; re-copying from an empty source would erase the
		// archived transaction history.
		return m.ArchiveRepo.GetAccountByOriginalID(ctx, acc.ID)
	case err != nil:
		return nil, fmt.Errorf("read %s before archive: %w", acc.Number, err)
	case current.Metadata.Version != acc.Metadata.Version:
		return nil, shared.ErrConcurrentModification
	}

	metaJSON, err := json.Marshal(acc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata for archive: %w", err)
	}
	snapshot := &ArchivedAccount{
		OriginalID: acc.ID,
		Number:     acc.Number,
		OwnerID:    acc.OwnerID,
		Type:       string(acc.Type),
		Balance:    acc.Balance,
		Currency:   acc.Currency,
		Status:     string(acc.Status),
		Metadata:   metaJSON,
		CreatedAt:  acc.CreatedAt,
		UpdatedAt:  acc.UpdatedAt,
		ArchivedAt: now,
		Reason:     reason,
	}

	var archivedTxns []ArchivedTransaction
	if m.CopyTransactions {
		txns, err := m.Transactions.ListByAccount(ctx, acc.ID)
		if err != nil {
			return nil, fmt.Errorf("list transactions of %s: %w", acc.Number, err)
		}
		archivedTxns = make([]ArchivedTransaction, 0, len(txns))
		for _, t := range txns {
			archivedTxns = append(archivedTxns, ArchivedTransaction{
				OriginalID:  t.ID,
				AccountID:   t.AccountID,
				Type:        string(t.Type),
				Amount:      t.Amount,
				Currency:    t.Currency,
				Description: t.Description,
				Status:      string(t.Status),
				OccurredAt:  t.OccurredAt,
				CreatedAt:   t.CreatedAt,
				UpdatedAt:   t.UpdatedAt,
				ArchivedAt:  now,
			})
		}
	}

	err = m.ArchiveRepo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.UpsertAccount(ctx, snapshot); err != nil {
			return err
		}
		if m.CopyTransactions {
			return repo.ReplaceTransactions(ctx, acc.ID, archivedTxns)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: copy %s to archive: %w", shared.ErrArchivalPartialFailure, acc.Number, err)
	}

	if err := m.Purger.Purge(ctx, acc.ID, acc.Metadata.Version, m.CopyTransactions); err != nil {
		if errors.Is(err, shared.ErrConcurrentModification) {
			// A manual transition won the race between the copy and the
			// purge. The operational row is the live record; drop the stale
			// snapshot so the archive never contradicts it.
			if delErr := m.ArchiveRepo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
				return repo.DeleteAccount(ctx, acc.ID)
			}); delErr != nil {
				m.log().Warn("remove stale archive snapshot",
					slog.String("numero_compte", acc.Number),
					slog.Any("error", delErr))
			}
			return nil, err
		}
		// Archive copy exists, source still in place. Retry-safe.
		return nil, fmt.Errorf("%w: purge %s from primary: %w", shared.ErrArchivalPartialFailure, acc.Number, err)
	}

	m.log().Info("archived account",
		slog.String("numero_compte", acc.Number),
		slog.String("reason", string(reason)),
		slog.Int("transactions", len(archivedTxns)))
	return snapshot, nil
}

// Unarchive recreates the account and its transactions in the operational
// store, status forced back to active, then deletes the archive rows. The
// archive delete is the last step for the same retry-safety reason.
func (m *Migrator) Unarchive(ctx context.Context, arch *ArchivedAccount) (*accounts.Account, error) {
	now := m.clock()

	var meta accounts.Metadata
	if len(arch.Metadata) > 0 {
		if err := json.Unmarshal(arch.Metadata, &meta); err != nil {
			return nil, fmt.Errorf("decode archived metadata of %s: %w", arch.Number, err)
		}
	}
	reason := string(arch.Reason)
	meta.UnarchivedAt = &now
	meta.UnarchiveReason = &reason
	meta.ClearSchedule()
	meta.Touch(now)

	acc := &accounts.Account{
		ID:        arch.OriginalID,
		Number:    arch.Number,
		OwnerID:   arch.OwnerID,
		Type:      accounts.AccountType(arch.Type),
		Balance:   arch.Balance,
		Currency:  arch.Currency,
		Status:    accounts.StatusActive,
		Metadata:  meta,
		CreatedAt: arch.CreatedAt,
		UpdatedAt: now,
	}
	if err := m.Accounts.Create(ctx, acc); err != nil {
		return nil, fmt.Errorf("restore account %s: %w", arch.Number, err)
	}

	txns, err := m.ArchiveRepo.ListTransactions(ctx, arch.OriginalID)
	if err != nil {
		return nil, fmt.Errorf("%w: list archived transactions of %s: %w", shared.ErrArchivalPartialFailure, arch.Number, err)
	}
	for _, t := range txns {
		restored := &transactions.Transaction{
			ID:          t.OriginalID,
			AccountID:   t.AccountID,
			Type:        transactions.TransactionType(t.Type),
			Amount:      t.Amount,
			Currency:    t.Currency,
			Description: t.Description,
			Status:      transactions.TransactionStatus(t.Status),
			OccurredAt:  t.OccurredAt,
			CreatedAt:   t.CreatedAt,
			UpdatedAt:   t.UpdatedAt,
		}
		if err := m.Transactions.Create(ctx, restored); err != nil {
			return nil, fmt.Errorf("%w: restore transaction %s of %s: %w", shared.ErrArchivalPartialFailure, t.OriginalID, arch.Number, err)
		}
	}

	err = m.ArchiveRepo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.DeleteAccount(ctx, arch.OriginalID)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: delete archive rows of %s: %w", shared.ErrArchivalPartialFailure, arch.Number, err)
	}

	m.log().Info("unarchived account",
		slog.String("numero_compte", arch.Number),
		slog.Int("transactions", len(txns)))
	return acc, nil
}

func (m *Migrator) log() *slog.Logger {
	if m != nil && m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
