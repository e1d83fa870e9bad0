// internal/utils/crypto.go
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func HashString(input string) string {
	hasher := sha256.New()
	hasher.Write([]byte(input))
	return hex.EncodeToString(hasher.Sum(nil))
}

// HashParts hashes parts joined by a separator that cannot appear in hex ids.
func HashParts(parts ...string) string {
	return HashString(strings.Join(parts, "|"))
}
