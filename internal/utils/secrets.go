package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecret returns n random bytes hex encoded
func GenerateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateSecrets returns one 256-bit secret per name
func GenerateSecrets(names ...string) (map[string]string, error) {
	secrets := make(map[string]string, len(names))
	for _, name := range names {
		secret, err := GenerateSecret(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s: %w", name, err)
		}
		secrets[name] = secret
	}
	return secrets, nil
}
