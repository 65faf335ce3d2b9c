// Package events publishes lobby lifecycle records to an optional external
// feed.
package events

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	LobbyCreated   Type = "lobby_created"
	PeerJoined     Type = "peer_joined"
	LobbySealed    Type = "lobby_sealed"
	PeerLeft       Type = "peer_left"
	LobbyDestroyed Type = "lobby_destroyed"
)

// Event is one lobby lifecycle record. Lobby holds a lobby reference, never
// the lobby name itself, since auto-generated names are invite secrets.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      Type      `json:"type"`
	Lobby     string    `json:"lobby"`
	PeerID    int       `json:"peer_id,omitempty"`
	Members   int       `json:"members"`
	Timestamp int64     `json:"timestamp"`
}

func New(typ Type, lobbyRef string, peerID, members int) Event {
	return Event{
		ID:        uuid.New(),
		Type:      typ,
		Lobby:     lobbyRef,
		PeerID:    peerID,
		Members:   members,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Publisher accepts events. Publish is called with lobby state locked and
// must not block.
type Publisher interface {
	Publish(Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}
