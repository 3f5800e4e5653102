// Package domain contains entity without logic, just meta-data
package domain

import (
	"crypto/rand"
	"math/big"
)

type RoomID string

const roomIDLen = 7

const roomIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewRoomID returns a short shareable identifier, the kind that fits in a
// stream URL query parameter. Identifiers are not checked for uniqueness;
// the registry creates a room on first join whatever the id is.
func NewRoomID() RoomID {
	buf := make([]byte, roomIDLen)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomIDAlphabet))))
		if err != nil {
			panic(err)
		}
		buf[i] = roomIDAlphabet[n.Int64()]
	}
	return RoomID(buf)
}
