package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
)

// Identifier of the client rate limited together
// Raw ip and user id never reach the store, only their hash
func Identifier(ip string, userID string) string {
	raw := ip
	if userID != "" {
		raw = ip + ":user:" + userID
	}

	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
