// Package integrity verifies downloaded artifacts against their expected SHA-256 digest.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Size is the length of a hex encoded SHA-256 digest.
const Size = sha256.Size * 2

// Sum returns the lowercase hex SHA-256 of content.
func Sum(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// Verify reports whether content hashes to expected. A mismatch is a
// normal result, not an error. Empty content verifies only against the
// digest of the empty input.
func Verify(content []byte, expected string) bool {
	return Sum(content) == strings.ToLower(strings.TrimSpace(expected))
}

// ValidDigest reports whether s is a well formed hex SHA-256 digest.
func ValidDigest(s string) bool {
	if len(s) != Size {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
