package signature

import (
	"crypto/rand"
	"encoding/hex"
)

// SecretPrefix marks generated feed secrets.
const SecretPrefix = "fsec_"

// GenerateSecret creates a cryptographically random feed secret.
// Format: "fsec_" + 32 bytes hex = 69 characters total.
func GenerateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("recur: failed to generate random secret: " + err.Error())
	}
	return SecretPrefix + hex.EncodeToString(b)
}
