package transactions

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the transaction store contract.
type Repository interface {
	Create(ctx context.Context, txn *Transaction) error
	ListByAccount(ctx context.Context, accountID string) ([]Transaction, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db dbtx
}

// NewRepository builds the pgx-backed transaction repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) Create(ctx context.Context, txn *Transaction) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO transactions (id, compte_id, type, montant, devise, description, statut, date_transaction, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, txn.ID, txn.AccountID, txn.Type, txn.Amount, txn.Currency, txn.Description, txn.Status, txn.OccurredAt, txn.CreatedAt, txn.UpdatedAt)
	return err
}

func (r *repository) ListByAccount(ctx context.Context, accountID string) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, compte_id, type, montant, devise, description, statut, date_transaction, created_at, updated_at
		FROM transactions
		WHERE compte_id = $1
		ORDER BY date_transaction
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.Currency, &t.Description, &t.Status, &t.OccurredAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}
