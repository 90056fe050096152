package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wariline/wariline/internal/platform/db"
	"github.com/wariline/wariline/internal/shared"
)

// Repository is the account store contract. Transition writes are
// version-conditional: they fail with shared.ErrConcurrentModification when
// another writer got there first.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, acc *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	GetByNumber(ctx context.Context, number string) (*Account, error)
	List(ctx context.Context, req ListAccountsRequest) ([]Account, error)
	ListScheduledActivations(ctx context.Context, now time.Time) ([]Account, error)
	ListExpiredBlocked(ctx context.Context, now time.Time) ([]Account, error)
	UpdateTransition(ctx context.Context, acc *Account, expectedVersion int64) error
	SoftDelete(ctx context.Context, acc *Account, expectedVersion int64) error
}

// ListAccountsRequest filters the account listing.
type ListAccountsRequest struct {
	Status  *AccountStatus
	Type    *AccountType
	OwnerID *string
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

// NewRepository builds the pgx-backed account repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const accountColumns = `id, numero_compte, user_id, type, solde, devise, statut, metadonnees, created_at, updated_at, deleted_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var acc Account
	var meta []byte
	if err := row.Scan(&acc.ID, &acc.Number, &acc.OwnerID, &acc.Type, &acc.Balance, &acc.Currency, &acc.Status, &meta, &acc.CreatedAt, &acc.UpdatedAt, &acc.DeletedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &acc.Metadata); err != nil {
			return nil, fmt.Errorf("decode account metadata %s: %w", acc.ID, err)
		}
	}
	return &acc, nil
}

func (r *repository) Create(ctx context.Context, acc *Account) error {
	meta, err := json.Marshal(acc.Metadata)
	if err != nil {
		return fmt.Errorf("encode account metadata: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO comptes (id, numero_compte, user_id, type, solde, devise, statut, metadonnees, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, acc.ID, acc.Number, acc.OwnerID, acc.Type, acc.Balance, acc.Currency, acc.Status, meta, acc.CreatedAt, acc.UpdatedAt)
	return err
}

func (r *repository) Get(ctx context.Context, id string) (*Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM comptes WHERE id = $1 AND deleted_at IS NULL`, id)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return acc, nil
}

func (r *repository) GetByNumber(ctx context.Context, number string) (*Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM comptes WHERE numero_compte = $1 AND deleted_at IS NULL`, number)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return acc, nil
}

func (r *repository) List(ctx context.Context, req ListAccountsRequest) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM comptes WHERE deleted_at IS NULL`
	var args []interface{}
	argPos := 1
	if req.Status != nil {
		query += fmt.Sprintf(" AND statut = $%d", argPos)
		args = append(args, *req.Status)
		argPos++
	} else {
		query += fmt.Sprintf(" AND statut <> $%d", argPos)
		args = append(args, StatusClosed)
		argPos++
	}
	if req.Type != nil {
		query += fmt.Sprintf(" AND type = $%d", argPos)
		args = append(args, *req.Type)
		argPos++
	}
	if req.OwnerID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argPos)
		args = append(args, *req.OwnerID)
		argPos++
	}
	query += " ORDER BY created_at DESC"
	return r.queryAccounts(ctx, query, args...)
}

func (r *repository) ListScheduledActivations(ctx context.Context, now time.Time) ([]Account, error) {
	return r.queryAccounts(ctx, `
		SELECT `+accountColumns+` FROM comptes
		WHERE deleted_at IS NULL
		  AND statut = $1
		  AND metadonnees->>'statutProgramme' = $2
		  AND metadonnees->>'dateDebutBlocage' IS NOT NULL
		  AND (metadonnees->>'dateDebutBlocage')::timestamptz <= $3
		ORDER BY (metadonnees->>'dateDebutBlocage')::timestamptz
	`, StatusActive, StatusBlocked, now)
}

func (r *repository) ListExpiredBlocked(ctx context.Context, now time.Time) ([]Account, error) {
	return r.queryAccounts(ctx, `
		SELECT `+accountColumns+` FROM comptes
		WHERE deleted_at IS NULL
		  AND statut = $1
		  AND metadonnees->>'dateFinBlocage' IS NOT NULL
		  AND (metadonnees->>'dateFinBlocage')::timestamptz <= $2
		ORDER BY (metadonnees->>'dateFinBlocage')::timestamptz
	`, StatusBlocked, now)
}

func (r *repository) queryAccounts(ctx context.Context, query string, args ...interface{}) ([]Account, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

// UpdateTransition writes the account's status and metadata, conditional on
// the version read at decision time. acc.Metadata must already carry the
// bumped version; expectedVersion is the one before the bump.
func (r *repository) UpdateTransition(ctx context.Context, acc *Account, expectedVersion int64) error {
	meta, err := json.Marshal(acc.Metadata)
	if err != nil {
		return fmt.Errorf("encode account metadata: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE comptes
		SET statut = $2, metadonnees = $3, updated_at = $4
		WHERE id = $1
		  AND deleted_at IS NULL
		  AND COALESCE((metadonnees->>'version')::bigint, 0) = $5
	`, acc.ID, acc.Status, meta, acc.UpdatedAt, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.explainMissedWrite(ctx, acc.ID)
	}
	return nil
}

func (r *repository) SoftDelete(ctx context.Context, acc *Account, expectedVersion int64) error {
	meta, err := json.Marshal(acc.Metadata)
	if err != nil {
		return fmt.Errorf("encode account metadata: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE comptes
		SET statut = $2, metadonnees = $3, updated_at = $4, deleted_at = $4
		WHERE id = $1
		  AND deleted_at IS NULL
		  AND COALESCE((metadonnees->>'version')::bigint, 0) = $5
	`, acc.ID, acc.Status, meta, acc.UpdatedAt, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.explainMissedWrite(ctx, acc.ID)
	}
	return nil
}

// explainMissedWrite distinguishes a vanished row from a lost version race.
func (r *repository) explainMissedWrite(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM comptes WHERE id = $1 AND deleted_at IS NULL)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return shared.ErrNotFound
	}
	return shared.ErrConcurrentModification
}
