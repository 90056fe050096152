package accounts

import "time"

// openAccountForm is the JSON payload for POST /accounts. Either the owner's
// id or the holder's name must be given; with only a name, an owner handle is
// derived from it.
type openAccountForm struct {
	OwnerID        string `json:"user_id" validate:"required_without=Holder"`
	Holder         string `json:"titulaire" validate:"required_without=OwnerID"`
	Type           string `json:"type" validate:"required,oneof=epargne cheque"`
	OpeningBalance string `json:"solde_initial" validate:"omitempty"`
	Currency       string `json:"devise" validate:"omitempty,len=3|len=4"`
}

// blockForm is the JSON payload for POST /accounts/{id}/block.
type blockForm struct {
	Reason       string     `json:"motif" validate:"required"`
	Duration     int        `json:"duree" validate:"required,gt=0"`
	Unit         string     `json:"unite" validate:"required,oneof=jours mois"`
	ActivationAt *time.Time `json:"date_debut" validate:"omitempty"`
}

// unblockForm is the JSON payload for POST /accounts/{id}/unblock.
type unblockForm struct {
	Reason string `json:"motif" validate:"required"`
}
