package learning

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentHash returns the canonical hash of learning content used for
// exact duplicate detection: case-folded, whitespace-normalized SHA-256.
func ContentHash(content string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
