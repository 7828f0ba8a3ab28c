package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewRowID returns a UUIDv4 suitable for record primary keys.
func NewRowID() string {
	return uuid.NewString()
}

// NewID returns a prefixed random identifier for non-row entities
// (sessions, request ids).
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
