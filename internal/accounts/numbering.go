package accounts

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const numberPrefix = "WL"

// NewAccountNumber generates a human-facing account number. Uniqueness is
// enforced by the store; collisions are retried by the caller.
func NewAccountNumber() string {
	max := big.NewInt(1_000_000_0000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		// crypto/rand only fails when the platform entropy source is broken
		panic(fmt.Sprintf("accounts: entropy source unavailable: %v", err))
	}
	return fmt.Sprintf("%s-%010d", numberPrefix, n)
}

var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// HolderSlug normalises an account holder name into a lowercase ASCII slug,
// used as the base of generated logins. Accented characters common in the
// customer base (Sékou, Ndèye, ...) fold to their ASCII bases rather than
// being dropped.
func HolderSlug(name string) string {
	folded, _, err := transform.String(asciiFold, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
