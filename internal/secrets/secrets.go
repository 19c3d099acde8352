package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Byte lengths used for generated configuration values. These are part
// of the config schema contract: consumers derive key sizes from them.
const (
	TokenBytes      = 32
	CredentialBytes = 8
)

// Token returns n cryptographically random bytes, hex-encoded (2n
// characters).
func Token(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
