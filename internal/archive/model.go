package archive

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Reason records what triggered a move into the archive store.
type Reason string

const (
	// ReasonBlockExpired tags accounts archived once their block period ended.
	ReasonBlockExpired Reason = "blocking_period_expired"
	// ReasonBlockStarted tags accounts moved out of the operational store for
	// the duration of their block.
	ReasonBlockStarted Reason = "blocking_started"
)

// ArchivedAccount mirrors an account in the archive store. OriginalID is
// unique per table: archiving the same account twice converges on one row.
// Metadata travels as the opaque serialized document, the archive never
// interprets it.
type ArchivedAccount struct {
	OriginalID string          `json:"original_id" db:"original_id"`
	Number     string          `json:"numero_compte" db:"numero_compte"`
	OwnerID    string          `json:"user_id" db:"user_id"`
	Type       string          `json:"type" db:"type"`
	Balance    decimal.Decimal `json:"solde" db:"solde"`
	Currency   string          `json:"devise" db:"devise"`
	Status     string          `json:"statut" db:"statut"`
	Metadata   json.RawMessage `json:"metadonnees" db:"metadonnees"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
	ArchivedAt time.Time       `json:"archived_at" db:"archived_at"`
	Reason     Reason          `json:"reason" db:"reason"`
}

// ArchivedTransaction mirrors a transaction in the archive store. Archival
// never mutates amount, type or status, it only relocates the record.
type ArchivedTransaction struct {
	OriginalID  string          `json:"original_id" db:"original_id"`
	AccountID   string          `json:"compte_id" db:"compte_id"`
	Type        string          `json:"type" db:"type"`
	Amount      decimal.Decimal `json:"montant" db:"montant"`
	Currency    string          `json:"devise" db:"devise"`
	Description string          `json:"description" db:"description"`
	Status      string          `json:"statut" db:"statut"`
	OccurredAt  time.Time       `json:"date_transaction" db:"date_transaction"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	ArchivedAt  time.Time       `json:"archived_at" db:"archived_at"`
}
