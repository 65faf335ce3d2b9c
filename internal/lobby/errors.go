package lobby

import (
	"errors"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/peer"
)

var (
	ErrAlreadyInLobby     = peer.ErrAlreadyInLobby
	ErrTooManyLobbies     = errors.New("too many lobbies")
	ErrLobbyNotFound      = errors.New("lobby not found")
	ErrLobbySealed        = errors.New("lobby sealed")
	ErrNotInLobby         = errors.New("peer not in a lobby")
	ErrNotHost            = errors.New("only the lobby host may do that")
	ErrUnknownDestination = errors.New("destination not in lobby")
	ErrInvalidRelayCode   = errors.New("invalid relay command")
	ErrSecretExhausted    = errors.New("failed to allocate unique lobby secret")
)
