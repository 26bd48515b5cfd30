package ids

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

const shortLen = 8

// Short returns the first 8 hex characters of a random UUID.
func Short() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:shortLen]
}

// Token returns an opaque url-safe token with 32 bytes of entropy.
func Token() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// Unique draws Short() until taken reports false.
func Unique(taken func(string) bool) string {
	for {
		id := Short()
		if !taken(id) {
			return id
		}
	}
}
