package security

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateSessionSecret returns a new refresh-session secret: 64 random bytes,
// hex-encoded (512 bits of entropy). The value is handed to the client once and
// stored only on the session row it belongs to.
func GenerateSessionSecret() (string, error) {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// AbbreviateSecret returns a short prefix of a secret for log and audit output.
// Raw session secrets must never appear in logs in full.
func AbbreviateSecret(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8] + "..."
}
