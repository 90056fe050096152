package archive

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wariline/wariline/internal/platform/db"
	"github.com/wariline/wariline/internal/shared"
)

// Repository is the archive store contract. It lives on its own connection
// pool, pointed at a physically separate database.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	UpsertAccount(ctx context.Context, acc *ArchivedAccount) error
	ReplaceTransactions(ctx context.Context, accountOriginalID string, txns []ArchivedTransaction) error
	GetAccountByOriginalID(ctx context.Context, originalID string) (*ArchivedAccount, error)
	ListTransactions(ctx context.Context, accountOriginalID string) ([]ArchivedTransaction, error)
	ListDueForRestore(ctx context.Context, now time.Time) ([]ArchivedAccount, error)
	DeleteAccount(ctx context.Context, originalID string) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed archive repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

// UpsertAccount inserts the snapshot, deleting any stale row for the same
// original id first. Re-running a partially failed migration therefore never
// produces duplicates.
func (r *repository) UpsertAccount(ctx context.Context, acc *ArchivedAccount) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM archived_comptes WHERE original_id = $1`, acc.OriginalID); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO archived_comptes (original_id, numero_compte, user_id, type, solde, devise, statut, metadonnees, created_at, updated_at, archived_at, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, acc.OriginalID, acc.Number, acc.OwnerID, acc.Type, acc.Balance, acc.Currency, acc.Status, acc.Metadata, acc.CreatedAt, acc.UpdatedAt, acc.ArchivedAt, acc.Reason)
	return err
}

// ReplaceTransactions swaps the archived transaction set of one account for
// the given snapshots, in one statement batch.
func (r *repository) ReplaceTransactions(ctx context.Context, accountOriginalID string, txns []ArchivedTransaction) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM archived_transactions WHERE compte_id = $1`, accountOriginalID); err != nil {
		return err
	}
	for _, t := range txns {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO archived_transactions (original_id, compte_id, type, montant, devise, description, statut, date_transaction, created_at, updated_at, archived_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, t.OriginalID, t.AccountID, t.Type, t.Amount, t.Currency, t.Description, t.Status, t.OccurredAt, t.CreatedAt, t.UpdatedAt, t.ArchivedAt); err != nil {
			return err
		}
	}
	return nil
}

const archivedAccountColumns = `original_id, numero_compte, user_id, type, solde, devise, statut, metadonnees, created_at, updated_at, archived_at, reason`

func scanArchivedAccount(row pgx.Row) (*ArchivedAccount, error) {
	var acc ArchivedAccount
	if err := row.Scan(&acc.OriginalID, &acc.Number, &acc.OwnerID, &acc.Type, &acc.Balance, &acc.Currency, &acc.Status, &acc.Metadata, &acc.CreatedAt, &acc.UpdatedAt, &acc.ArchivedAt, &acc.Reason); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *repository) GetAccountByOriginalID(ctx context.Context, originalID string) (*ArchivedAccount, error) {
	row := r.db.QueryRow(ctx, `SELECT `+archivedAccountColumns+` FROM archived_comptes WHERE original_id = $1`, originalID)
	acc, err := scanArchivedAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return acc, nil
}

func (r *repository) ListTransactions(ctx context.Context, accountOriginalID string) ([]ArchivedTransaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT original_id, compte_id, type, montant, devise, description, statut, date_transaction, created_at, updated_at, archived_at
		FROM archived_transactions
		WHERE compte_id = $1
		ORDER BY date_transaction
	`, accountOriginalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []ArchivedTransaction
	for rows.Next() {
		var t ArchivedTransaction
		if err := rows.Scan(&t.OriginalID, &t.AccountID, &t.Type, &t.Amount, &t.Currency, &t.Description, &t.Status, &t.OccurredAt, &t.CreatedAt, &t.UpdatedAt, &t.ArchivedAt); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// ListDueForRestore finds accounts parked in the archive for the duration of
// their block whose hold period has ended. Accounts archived because the
// block already expired are terminal and never come back this way.
func (r *repository) ListDueForRestore(ctx context.Context, now time.Time) ([]ArchivedAccount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+archivedAccountColumns+` FROM archived_comptes
		WHERE reason = $1
		  AND metadonnees->>'dateFinBlocage' IS NOT NULL
		  AND (metadonnees->>'dateFinBlocage')::timestamptz <= $2
		ORDER BY archived_at
	`, ReasonBlockStarted, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []ArchivedAccount
	for rows.Next() {
		acc, err := scanArchivedAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes the archived account and its transactions.
func (r *repository) DeleteAccount(ctx context.Context, originalID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM archived_transactions WHERE compte_id = $1`, originalID); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `DELETE FROM archived_comptes WHERE original_id = $1`, originalID)
	return err
}
