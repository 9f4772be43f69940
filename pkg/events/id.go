package events

import (
	"crypto/rand"
	"encoding/hex"
)

// NewEventID produces a unique client event identifier.
// Format: "evt_" + 16 hex chars, e.g. "evt_a1b2c3d4e5f6a7b8".
func NewEventID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "evt_" + hex.EncodeToString(b)
}
