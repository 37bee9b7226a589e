package keys

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// RightsId is the 128-bit identifier linking content to its title-key entry,
// stored big-endian as it appears on the wire. The zero value means the
// content carries no rights ID and is keyed from its key area instead.
type RightsId [0x10]byte

// ParseRightsId parses a hex rights ID, with or without a 0x prefix. Shorter
// strings are treated numerically and padded on the left.
func ParseRightsId(s string) (RightsId, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) == 0 || len(s) > 32 {
		return RightsId{}, fmt.Errorf("rights id must be 1-32 hex chars, got %d", len(s))
	}
	if len(s) < 32 {
		s = strings.Repeat("0", 32-len(s)) + s
	}

	var id RightsId
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return RightsId{}, fmt.Errorf("parse rights id: %w", err)
	}
	return id, nil
}

// IsZero reports whether the ID is all zeroes.
func (r RightsId) IsZero() bool {
	return r == RightsId{}
}

func (r RightsId) String() string {
	return "0x" + hex.EncodeToString(r[:])
}
