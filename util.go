package faultline

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// newEventID returns a random event identifier: 32 lowercase hexadecimal
// characters, no dashes.
func newEventID() EventID {
	id := uuid.New()
	return EventID(hex.EncodeToString(id[:]))
}
