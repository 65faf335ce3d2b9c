package peer

import (
	"crypto/rand"
	"encoding/binary"
)

// HostHandle is the lobby-relative handle reserved for the lobby host. It is
// never issued as a peer id.
const HostHandle = 1

const maxID = 1<<31 - 1

// newID returns a random id in [2, 2^31-1].
func newID() (int, error) {
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		id := int(binary.BigEndian.Uint32(buf[:]) & maxID)
		if id > HostHandle {
			return id, nil
		}
	}
}
