package lobby

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/events"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/peer"
)

type Config struct {
	// MaxLobbies caps concurrently open lobbies. Zero means unlimited.
	MaxLobbies int
	// SecretLength is the length of auto-generated lobby names.
	SecretLength int

	Events  events.Publisher
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Manager owns every open lobby. All membership changes and relay lookups
// happen under a single lock, so handle resolution always sees a consistent
// member list.
//
// Lock order is Manager.mu, then the peer's own lock.
type Manager struct {
	cfg     Config
	events  events.Publisher
	metrics *metrics.Metrics
	log     *slog.Logger

	mu      sync.Mutex
	lobbies map[string]*lobby
}

func NewManager(cfg Config) *Manager {
	if cfg.SecretLength <= 0 {
		cfg.SecretLength = config.DefaultLobbySecretLength
	}
	ev := cfg.Events
	if ev == nil {
		ev = events.Nop{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		events:  ev,
		metrics: cfg.Metrics,
		log:     log,
		lobbies: make(map[string]*lobby),
	}
}

// CreateOrJoin joins p to the lobby called name. An empty name creates a new
// lobby under a fresh secret with p as its host.
func (m *Manager) CreateOrJoin(p *peer.Peer, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.Evicted() {
		return peer.ErrPeerClosed
	}
	if p.Lobby() != "" {
		return ErrAlreadyInLobby
	}

	var l *lobby
	if name == "" {
		if m.cfg.MaxLobbies > 0 && len(m.lobbies) >= m.cfg.MaxLobbies {
			m.metrics.Inc(metrics.DropReasonTooManyLobbies)
			m.log.Warn("too many lobbies open, rejecting create", "peer_id", p.ID(), "open_lobbies", len(m.lobbies))
			return ErrTooManyLobbies
		}
		secret, err := m.newSecretLocked()
		if err != nil {
			return err
		}
		l = &lobby{
			name:      secret,
			ref:       Ref(secret),
			hostID:    p.ID(),
			createdAt: time.Now(),
		}
	} else {
		var ok bool
		l, ok = m.lobbies[name]
		if !ok {
			m.metrics.Inc(metrics.DropReasonLobbyNotFound)
			return ErrLobbyNotFound
		}
		if l.sealed {
			m.metrics.Inc(metrics.DropReasonLobbySealed)
			return ErrLobbySealed
		}
	}

	if err := p.BindLobby(l.name); err != nil {
		return err
	}

	if _, ok := m.lobbies[l.name]; !ok {
		m.lobbies[l.name] = l
		m.metrics.Inc(metrics.LobbiesCreated)
		m.events.Publish(events.New(events.LobbyCreated, l.ref, p.ID(), 0))
		m.log.Info("lobby created", "lobby_ref", l.ref, "host_id", p.ID(), "open_lobbies", len(m.lobbies))
	}

	m.joinLocked(l, p)
	return nil
}

// joinLocked appends p and tells every member about everyone else.
func (m *Manager) joinLocked(l *lobby, p *peer.Peer) {
	handle := resolveHandle(l, p.ID())
	p.Send(fmt.Sprintf("I: %d\n", handle))
	for _, member := range l.members {
		member.Send(fmt.Sprintf("N: %d\n", handle))
		p.Send(fmt.Sprintf("N: %d\n", resolveHandle(l, member.ID())))
	}
	l.members = append(l.members, p)
	p.Send(fmt.Sprintf("J: %s\n", l.name))

	m.metrics.Inc(metrics.PeersJoined)
	m.events.Publish(events.New(events.PeerJoined, l.ref, p.ID(), len(l.members)))
	m.log.Debug("peer joined lobby", "lobby_ref", l.ref, "peer_id", p.ID(), "handle", handle, "members", len(l.members))
}

func (m *Manager) newSecretLocked() (string, error) {
	for attempt := 0; attempt < 3; attempt++ {
		secret, err := newSecret(m.cfg.SecretLength)
		if err != nil {
			return "", err
		}
		if _, ok := m.lobbies[secret]; !ok {
			return secret, nil
		}
	}
	return "", ErrSecretExhausted
}

// Leave removes p from its lobby. It reports whether p was the host, in which
// case every other member has been closed and the lobby is gone.
func (m *Manager) Leave(p *peer.Peer) (hostDeparted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := p.Lobby()
	if name == "" {
		return false
	}
	l, ok := m.lobbies[name]
	if !ok {
		p.UnbindLobby()
		return false
	}
	idx := l.indexOf(p)
	if idx < 0 {
		return false
	}

	handle := resolveHandle(l, p.ID())
	l.members = append(l.members[:idx], l.members[idx+1:]...)
	p.UnbindLobby()

	m.metrics.Inc(metrics.PeersLeft)
	m.events.Publish(events.New(events.PeerLeft, l.ref, p.ID(), len(l.members)))

	if p.ID() == l.hostID {
		m.destroyLocked(l)
		return true
	}

	for _, member := range l.members {
		member.Send(fmt.Sprintf("D: %d\n", handle))
	}
	m.log.Debug("peer left lobby", "lobby_ref", l.ref, "peer_id", p.ID(), "members", len(l.members))
	return false
}

// destroyLocked evicts every remaining member and removes l.
func (m *Manager) destroyLocked(l *lobby) {
	remaining := l.members
	l.members = nil
	delete(m.lobbies, l.name)

	for _, member := range remaining {
		member.Evict()
	}

	m.metrics.Inc(metrics.LobbiesDestroyed)
	m.events.Publish(events.New(events.LobbyDestroyed, l.ref, l.hostID, 0))
	m.log.Info("lobby destroyed",
		"lobby_ref", l.ref,
		"closed_members", len(remaining),
		"sealed", l.sealed,
		"age", time.Since(l.createdAt).Round(time.Millisecond),
		"open_lobbies", len(m.lobbies),
	)
}

// memberLobbyLocked returns the lobby p currently belongs to.
func (m *Manager) memberLobbyLocked(p *peer.Peer) (*lobby, error) {
	name := p.Lobby()
	if name == "" {
		return nil, ErrNotInLobby
	}
	l, ok := m.lobbies[name]
	if !ok || l.indexOf(p) < 0 {
		return nil, ErrNotInLobby
	}
	return l, nil
}

// Seal stops l from accepting joins. Only the host may seal.
func (m *Manager) Seal(p *peer.Peer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, err := m.memberLobbyLocked(p)
	if err != nil {
		return err
	}
	if p.ID() != l.hostID {
		return ErrNotHost
	}

	l.sealed = true
	for _, member := range l.members {
		member.Send("S: \n")
	}

	m.metrics.Inc(metrics.LobbiesSealed)
	m.events.Publish(events.New(events.LobbySealed, l.ref, p.ID(), len(l.members)))
	m.log.Info("lobby sealed", "lobby_ref", l.ref, "members", len(l.members))
	return nil
}

// Relay forwards an offer, answer or candidate from sender to the member
// addressed by destHandle. The payload is passed through untouched.
func (m *Manager) Relay(sender *peer.Peer, code byte, destHandle int, payload string) error {
	switch code {
	case 'O', 'A', 'C':
	default:
		return ErrInvalidRelayCode
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l, err := m.memberLobbyLocked(sender)
	if err != nil {
		return err
	}
	dest := l.member(resolveID(l, destHandle))
	if dest == nil {
		m.metrics.Inc(metrics.DropReasonUnknownDestination)
		return ErrUnknownDestination
	}

	dest.Send(fmt.Sprintf("%c: %d\n%s", code, resolveHandle(l, sender.ID()), payload))
	m.metrics.Inc(metrics.RelayForwarded)
	return nil
}

// Len returns the number of open lobbies.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lobbies)
}

func (m *Manager) Lookup(name string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lobbies[name]
	if !ok {
		return Snapshot{}, false
	}
	return l.snapshot(), true
}
