// Package keygen produces opaque license key identifiers.
package keygen

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// Length is the number of characters in a generated key.
const Length = 16

// Generate returns a 16-character lowercase hex string drawn from a random
// (version 4) UUID.
func Generate() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])[:Length]
}
