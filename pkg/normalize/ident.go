package normalize

import (
	"crypto/sha256"
	"encoding/hex"
)

// IDLength is the number of hex characters kept from the URL digest. 16 hex
// characters are 64 bits, enough for the article volume of a single site.
const IDLength = 16

// DeriveID returns the identifier of a record that arrives without one: the
// first IDLength hex characters of SHA-256 over the exact URL bytes. URLs
// are not canonicalized, so a trailing slash or query reordering yields a
// different id.
func DeriveID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:IDLength]
}

// DeriveIDChecked is DeriveID that also reports ErrIdentifierDegenerate for
// an empty URL. The degenerate id is still returned.
func DeriveIDChecked(url string) (string, error) {
	id := DeriveID(url)
	if url == "" {
		return id, ErrIdentifierDegenerate
	}
	return id, nil
}
