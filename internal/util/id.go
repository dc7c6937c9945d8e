package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a 24 character hex ID for records.
func NewID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(uuid.NewString())[:12])
	}
	return hex.EncodeToString(b)
}

// NewUUID returns a random RFC 4122 identifier.
func NewUUID() string {
	return uuid.NewString()
}
