package journal

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// ID names exactly one journal. It is carried in every sync frame so
// unrelated journals cannot cross-pollinate (spec §3). Document ID equals
// the storage-journal ID; each client picks its own timeline-journal ID.
type ID [16]byte

// NewID generates a fresh journal identifier. IDs are UUIDv7 so that, like
// the teacher's flow-token generator, they sort approximately by creation
// time — useful for log scanning and debugging, never relied upon for
// correctness.
func NewID() ID {
	u := uuid.Must(uuid.NewV7())
	var id ID
	copy(id[:], u[:])
	return id
}

// ParseID decodes a hex-encoded journal ID, the inverse of ID.String.
func ParseID(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse journal id: %w", err)
	}
	if len(b) != 16 {
		return ID{}, fmt.Errorf("parse journal id: want 16 bytes, got %d", len(b))
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value (never a valid generated ID,
// but a useful sentinel for "not yet assigned").
func (id ID) IsZero() bool {
	return id == ID{}
}
