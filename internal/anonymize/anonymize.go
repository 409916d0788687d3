// Package anonymize turns raw sample identifiers into pseudonymous tokens.
//
// A token is the first TokenLen hex characters of the SHA-256 digest of the
// raw identifier. The transform is deterministic, so the same subject maps to
// the same token in every source, and there is no decoding path.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
)

// TokenLen is the length of a pseudonymous token in hex characters.
const TokenLen = 16

// ID returns the pseudonymous token for raw. Any string is valid input,
// including the empty string.
func ID(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:TokenLen/2])
}

// IsToken reports whether s has the shape of a token produced by ID:
// exactly TokenLen lowercase hex characters.
func IsToken(s string) bool {
	if len(s) != TokenLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
