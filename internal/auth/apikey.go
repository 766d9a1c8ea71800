package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// KeyPrefix is the prefix for generated API keys
	KeyPrefix = "ch_key_"
	// KeyLength is the length of the random part of the key
	KeyLength = 32
)

// GenerateAPIKey generates a new API key for SERVER_API_KEY.
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, KeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(bytes), nil
}
