// Package shortcode derives short codes from original URLs.
package shortcode

import (
	"crypto/sha256"
	"encoding/hex"
)

// Length is the number of hex characters kept from the digest.
const Length = 16

// Generate returns the first Length hex characters of the SHA-256 digest of longURL.
// The input is hashed byte for byte, so URLs differing only in case, trailing slash or
// query order produce different codes.
func Generate(longURL string) string {
	sum := sha256.Sum256([]byte(longURL))
	return hex.EncodeToString(sum[:])[:Length]
}

// Valid reports whether code has the shape of a value returned by Generate.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}

	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}
