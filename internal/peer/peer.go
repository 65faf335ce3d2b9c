// Package peer tracks connected signaling clients and their lobby membership.
package peer

import (
	"sync"
	"time"
)

// Channel is the transport side of a peer.
//
// Send must not block; a transport that cannot keep up should close itself.
// Close must be safe to call more than once.
type Channel interface {
	Send(frame string)
	Close()
}

type Peer struct {
	id int
	ch Channel

	mu        sync.Mutex
	lobby     string
	joined    bool
	evicted   bool
	closed    bool
	joinTimer *time.Timer
}

func (p *Peer) ID() int { return p.id }

// Lobby returns the name of the lobby the peer belongs to, or "".
func (p *Peer) Lobby() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lobby
}

func (p *Peer) Send(frame string) { p.ch.Send(frame) }

// BindLobby records lobby membership. A peer joins at most one lobby per
// connection; binding also cancels the join grace timer.
func (p *Peer) BindLobby(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.evicted {
		return ErrPeerClosed
	}
	if p.lobby != "" {
		return ErrAlreadyInLobby
	}
	p.lobby = name
	p.joined = true
	p.stopTimerLocked()
	return nil
}

// UnbindLobby clears the lobby name. The peer still counts as having joined,
// so the grace timer is not re-armed.
func (p *Peer) UnbindLobby() {
	p.mu.Lock()
	p.lobby = ""
	p.mu.Unlock()
}

func (p *Peer) stopTimerLocked() {
	if p.joinTimer != nil {
		p.joinTimer.Stop()
		p.joinTimer = nil
	}
}

// Evict clears the lobby binding and closes the channel. An evicted peer can
// no longer bind to a lobby, even if frames it sent earlier are still being
// processed.
func (p *Peer) Evict() {
	p.mu.Lock()
	p.lobby = ""
	p.evicted = true
	p.stopTimerLocked()
	p.mu.Unlock()
	p.ch.Close()
}

// Evicted reports whether the server has closed p.
func (p *Peer) Evicted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evicted || p.closed
}

// expireJoin evicts the peer if it is still unjoined and connected.
func (p *Peer) expireJoin() bool {
	p.mu.Lock()
	expired := !p.joined && !p.closed && !p.evicted
	p.joinTimer = nil
	if expired {
		p.evicted = true
	}
	p.mu.Unlock()
	if expired {
		p.ch.Close()
	}
	return expired
}
