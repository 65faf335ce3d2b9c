package peer

import "errors"

var (
	ErrTooManyPeers     = errors.New("too many peers")
	ErrIDSpaceExhausted = errors.New("failed to allocate unique peer id")
	// ErrAlreadyInLobby is returned by BindLobby when the peer is already a
	// lobby member.
	ErrAlreadyInLobby = errors.New("peer already in a lobby")
	ErrPeerClosed     = errors.New("peer closed")
)
