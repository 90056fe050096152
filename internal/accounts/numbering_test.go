package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAccountNumberFormat(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		n := NewAccountNumber()
		require.Regexp(t, `^WL-\d{10}$`, n)
		seen[n] = struct{}{}
	}
	require.Greater(t, len(seen), 1)
}

func TestHolderSlugFoldsAccents(t *testing.T) {
	cases := map[string]string{
		"Sékou Touré":    "sekoutoure",
		"Ndèye Fall":     "ndeyefall",
		"Jean-Pierre":    "jeanpierre",
		"Awa  Diop 2":    "awadiop2",
		"   ":            "",
		"École Générale": "ecolegenerale",
	}
	for in, want := range cases {
		require.Equal(t, want, HolderSlug(in), "input %q", in)
	}
}

func TestOpenDerivesOwnerFromHolderName(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	acc, err := svc.Open(ctx, OpenAccountRequest{HolderName: "Sékou Touré", Type: TypeSavings})
	require.NoError(t, err)
	require.Regexp(t, `^sekoutoure-[0-9a-f]{8}$`, acc.OwnerID)

	_, err = svc.Open(ctx, OpenAccountRequest{Type: TypeSavings})
	require.Error(t, err)
}
