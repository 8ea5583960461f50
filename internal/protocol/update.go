package protocol

import (
	"encoding/base64"
	"fmt"
)

// Document updates travel as base64 text on the wire. A zero-length update
// and the two-byte [0x00, 0x00] sentinel both mean "nothing changed" and are
// never sent.

// IsEmptyUpdate reports whether a document update carries no changes.
func IsEmptyUpdate(update []byte) bool {
	if len(update) == 0 {
		return true
	}
	return len(update) == 2 && update[0] == 0x00 && update[1] == 0x00
}

// EncodeUpdate encodes a binary document update for transport.
func EncodeUpdate(update []byte) string {
	return base64.StdEncoding.EncodeToString(update)
}

// DecodeUpdate decodes a transported document update back to bytes.
func DecodeUpdate(encoded string) ([]byte, error) {
	update, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode update: %w", err)
	}
	return update, nil
}
