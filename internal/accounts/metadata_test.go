package accounts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetadataRoundTripPreservesUnknownKeys(t *testing.T) {
	doc := []byte(`{
		"motifBlocage": "fraude suspectée",
		"dureeBlocage": 30,
		"uniteBlocage": "jours",
		"statutProgramme": "bloque",
		"derniereModification": "2026-02-01T09:00:00Z",
		"version": 3,
		"agence": "DKR-01",
		"noteInterne": {"auteur": "back-office", "texte": "vérifier KYC"}
	}`)

	var meta Metadata
	require.NoError(t, json.Unmarshal(doc, &meta))
	require.NotNil(t, meta.BlockReason)
	require.Equal(t, "fraude suspectée", *meta.BlockReason)
	require.EqualValues(t, 3, meta.Version)
	require.Len(t, meta.Extra, 2)
	require.Contains(t, meta.Extra, "agence")
	require.Contains(t, meta.Extra, "noteInterne")

	// A transition mutates its own fields and writes the whole document back.
	now := time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)
	meta.ClearSchedule()
	meta.Touch(now)

	out, err := json.Marshal(meta)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &raw))
	require.Contains(t, raw, "agence")
	require.Contains(t, raw, "noteInterne")
	require.NotContains(t, raw, "statutProgramme")
	require.JSONEq(t, `"DKR-01"`, string(raw["agence"]))
}

func TestMetadataExtraNeverShadowsOwnKeys(t *testing.T) {
	reason := "litige"
	meta := Metadata{
		BlockReason: &reason,
		Version:     1,
		Extra: map[string]json.RawMessage{
			"motifBlocage": json.RawMessage(`"forged"`),
			"canal":        json.RawMessage(`"agence"`),
		},
	}
	out, err := json.Marshal(meta)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &raw))
	require.JSONEq(t, `"litige"`, string(raw["motifBlocage"]))
	require.JSONEq(t, `"agence"`, string(raw["canal"]))
}

func TestTouchVersionArithmetic(t *testing.T) {
	now := time.Now().UTC()

	var meta Metadata
	meta.Touch(now)
	require.EqualValues(t, 1, meta.Version)
	require.Equal(t, now, meta.LastModifiedAt)

	for want := int64(2); want <= 5; want++ {
		meta.Touch(now.Add(time.Duration(want) * time.Minute))
		require.Equal(t, want, meta.Version)
	}
}

func TestMetadataOmitsEmptyOptionalFields(t *testing.T) {
	var meta Metadata
	meta.Touch(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	out, err := json.Marshal(meta)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &raw))
	require.Len(t, raw, 2)
	require.Contains(t, raw, "derniereModification")
	require.Contains(t, raw, "version")
}
