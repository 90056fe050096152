package accounts

import (
	"encoding/json"
	"time"
)

// Metadata is the schema-less account metadata document. The enumerated
// fields are the persisted contract; anything else a writer ever stored is
// carried through read-modify-write cycles untouched via Extra. The document
// is additive: transitions append fields, they never restructure or drop
// unrelated keys.
//
// Version is the optimistic-concurrency token. Every metadata write
// increments it by exactly 1 and the repository refuses the write when the
// stored version no longer matches the one read at decision time.
type Metadata struct {
	BlockReason       *string    `json:"motifBlocage,omitempty"`
	BlockStartsAt     *time.Time `json:"dateDebutBlocage,omitempty"`
	BlockEndsAt       *time.Time `json:"dateFinBlocage,omitempty"`
	BlockDuration     *int       `json:"dureeBlocage,omitempty"`
	BlockDurationUnit *string    `json:"uniteBlocage,omitempty"`
	// ScheduledStatus marks a pending block on an account that is still
	// active ("bloque" until activation, cleared afterwards).
	ScheduledStatus   *string    `json:"statutProgramme,omitempty"`
	UnblockReason     *string    `json:"motifDeblocage,omitempty"`
	UnblockedAt       *time.Time `json:"dateDeblocage,omitempty"`
	AutoUnblockedAt   *time.Time `json:"dateDeblocageAutomatique,omitempty"`
	AutoUnblockReason *string    `json:"motifDeblocageAutomatique,omitempty"`
	UnarchivedAt      *time.Time `json:"unarchived_at,omitempty"`
	UnarchiveReason   *string    `json:"reason_unarchived,omitempty"`
	LastModifiedAt    time.Time  `json:"derniereModification"`
	Version           int64      `json:"version"`

	// Extra holds keys this build does not know about, preserved verbatim.
	Extra map[string]json.RawMessage `json:"-"`
}

// metadataAlias avoids recursing into the custom JSON methods.
type metadataAlias Metadata

var metadataOwnKeys = map[string]struct{}{
	"motifBlocage":              {},
	"dateDebutBlocage":          {},
	"dateFinBlocage":            {},
	"dureeBlocage":              {},
	"uniteBlocage":              {},
	"statutProgramme":           {},
	"motifDeblocage":            {},
	"dateDeblocage":             {},
	"dateDeblocageAutomatique":  {},
	"motifDeblocageAutomatique": {},
	"unarchived_at":             {},
	"reason_unarchived":         {},
	"derniereModification":      {},
	"version":                   {},
}

// MarshalJSON flattens the typed fields and the extension map into a single
// document.
func (m Metadata) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(metadataAlias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return known, nil
	}
	doc := make(map[string]json.RawMessage, len(m.Extra)+len(metadataOwnKeys))
	if err := json.Unmarshal(known, &doc); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		if _, owned := metadataOwnKeys[k]; owned {
			continue
		}
		doc[k] = v
	}
	return json.Marshal(doc)
}

// UnmarshalJSON splits a document into the typed fields and the extension
// map.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var alias metadataAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	for k := range metadataOwnKeys {
		delete(doc, k)
	}
	if len(doc) == 0 {
		doc = nil
	}
	*m = Metadata(alias)
	m.Extra = doc
	return nil
}

// Touch stamps the modification time and bumps the version by exactly 1.
// Every mutation path funnels through here so the version arithmetic holds
// regardless of which transition wrote.
func (m *Metadata) Touch(now time.Time) {
	m.LastModifiedAt = now
	if m.Version == 0 {
		m.Version = 1
		return
	}
	m.Version++
}

// ClearSchedule removes the shadow scheduled-block marker after activation.
func (m *Metadata) ClearSchedule() {
	m.ScheduledStatus = nil
}
