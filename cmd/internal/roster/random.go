package roster

import (
	"crypto/rand"
	"encoding/hex"
)

// newID returns 20 random hex chars, or "" in the unlikely case the system RNG fails.
func newID() string {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
