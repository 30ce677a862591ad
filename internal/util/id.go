package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewJTI returns a unique token identifier for revocation tracking.
func NewJTI() string {
	return uuid.NewString()
}
