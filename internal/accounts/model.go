package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType enumerates the supported account products. The wire values keep
// the legacy contract so records written by the previous system stay readable.
type AccountType string

const (
	TypeSavings  AccountType = "epargne"
	TypeChecking AccountType = "cheque"
)

// Valid reports whether the type is one of the known products.
func (t AccountType) Valid() bool {
	return t == TypeSavings || t == TypeChecking
}

// Blockable reports whether accounts of this type may be blocked. Only
// savings accounts carry a hold period; checking accounts never do.
func (t AccountType) Blockable() bool {
	return t == TypeSavings
}

// AccountStatus enumerates the account lifecycle states.
type AccountStatus string

const (
	StatusActive  AccountStatus = "actif"
	StatusBlocked AccountStatus = "bloque"
	StatusClosed  AccountStatus = "ferme"
)

// DurationUnit is the unit of a block duration.
type DurationUnit string

const (
	UnitDays   DurationUnit = "jours"
	UnitMonths DurationUnit = "mois"
)

// Valid reports whether the unit is supported.
func (u DurationUnit) Valid() bool {
	return u == UnitDays || u == UnitMonths
}

// AddTo returns t advanced by n units.
func (u DurationUnit) AddTo(t time.Time, n int) time.Time {
	if u == UnitMonths {
		return t.AddDate(0, n, 0)
	}
	return t.AddDate(0, 0, n)
}

// Account is a bank account in the operational store.
//
// A scheduled block is a shadow state: the account keeps StatusActive while
// Metadata.ScheduledStatus marks the pending block and its activation time.
// The reconciliation job flips Status to StatusBlocked once the activation
// time is reached, never before.
type Account struct {
	ID        string          `json:"id" db:"id"`
	Number    string          `json:"numero_compte" db:"numero_compte"`
	OwnerID   string          `json:"user_id" db:"user_id"`
	Type      AccountType     `json:"type" db:"type"`
	Balance   decimal.Decimal `json:"solde" db:"solde"`
	Currency  string          `json:"devise" db:"devise"`
	Status    AccountStatus   `json:"statut" db:"statut"`
	Metadata  Metadata        `json:"metadonnees" db:"metadonnees"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// ScheduledBlockPending reports whether a block is scheduled but not yet
// activated.
func (a *Account) ScheduledBlockPending() bool {
	return a.Status == StatusActive && a.Metadata.ScheduledStatus != nil && *a.Metadata.ScheduledStatus == string(StatusBlocked)
}
