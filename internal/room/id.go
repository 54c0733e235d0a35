// Package room implements the per-room state machine: the authoritative
// board, the monotonic server sync counter, the subscriber table, and the
// single-consumer command loop that serializes every mutation.
package room

import (
	"encoding/hex"
	"fmt"

	"github.com/gofrs/uuid/v5"
)

// ID is a room's 128-bit identifier. It is stored as 16 raw bytes in
// persistence and surfaced on the wire and in URLs as lowercase hex
// (32 characters) — the encoding this service commits to, per the wire
// contract note in the design notes.
type ID [16]byte

// RandomID mints a fresh room id.
func RandomID() ID {
	u, err := uuid.NewV4()
	if err != nil {
		// uuid.NewV4 only fails if the system's CSPRNG is broken, which
		// is not a condition this service can recover from.
		panic(fmt.Sprintf("room: failed to generate random id: %v", err))
	}
	return ID(u)
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseID decodes the hex form produced by String.
func ParseID(s string) (ID, error) {
	var id ID
	if len(s) != len(id)*2 {
		return ID{}, fmt.Errorf("room id %q must be %d hex characters", s, len(id)*2)
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return ID{}, fmt.Errorf("room id %q is not valid hex: %w", s, err)
	}
	return id, nil
}
