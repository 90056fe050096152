package transactions

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates the supported monetary operations.
type TransactionType string

const (
	TypeDeposit    TransactionType = "depot"
	TypeWithdrawal TransactionType = "retrait"
	TypeTransfer   TransactionType = "virement"
	TypeFee        TransactionType = "frais"
)

// TransactionStatus enumerates the transaction lifecycle states.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "en_attente"
	StatusValidated TransactionStatus = "validee"
	StatusCancelled TransactionStatus = "annulee"
)

// Transaction is a monetary movement on an account. Amount is always
// positive; the sign of its contribution to the balance depends on the type.
// Transactions are immutable after creation, archival only relocates them.
type Transaction struct {
	ID          string            `json:"id" db:"id"`
	AccountID   string            `json:"compte_id" db:"compte_id"`
	Type        TransactionType   `json:"type" db:"type"`
	Amount      decimal.Decimal   `json:"montant" db:"montant"`
	Currency    string            `json:"devise" db:"devise"`
	Description string            `json:"description" db:"description"`
	Status      TransactionStatus `json:"statut" db:"statut"`
	OccurredAt  time.Time         `json:"date_transaction" db:"date_transaction"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

// BalanceImpact returns the signed contribution of the transaction to the
// account balance.
func (t *Transaction) BalanceImpact() decimal.Decimal {
	switch t.Type {
	case TypeDeposit, TypeTransfer:
		return t.Amount
	case TypeWithdrawal, TypeFee:
		return t.Amount.Neg()
	}
	return decimal.Zero
}
