// Package lobby implements lobby membership, host-relative handles and
// signaling relay between lobby members.
package lobby

import (
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/peer"
)

type lobby struct {
	name      string
	ref       string
	hostID    int
	members   []*peer.Peer
	sealed    bool
	createdAt time.Time
}

// Snapshot is a read-only copy of lobby state.
type Snapshot struct {
	Name    string
	HostID  int
	Members []int
	Sealed  bool
}

// resolveHandle maps a real peer id to the handle other members use for it.
func resolveHandle(l *lobby, id int) int {
	if id == l.hostID {
		return peer.HostHandle
	}
	return id
}

// resolveID maps a lobby-relative handle back to a real peer id.
func resolveID(l *lobby, handle int) int {
	if handle == peer.HostHandle {
		return l.hostID
	}
	return handle
}

func (l *lobby) indexOf(p *peer.Peer) int {
	for i, m := range l.members {
		if m == p {
			return i
		}
	}
	return -1
}

func (l *lobby) member(id int) *peer.Peer {
	for _, m := range l.members {
		if m.ID() == id {
			return m
		}
	}
	return nil
}

func (l *lobby) snapshot() Snapshot {
	ids := make([]int, len(l.members))
	for i, m := range l.members {
		ids[i] = m.ID()
	}
	return Snapshot{
		Name:    l.name,
		HostID:  l.hostID,
		Members: ids,
		Sealed:  l.sealed,
	}
}
