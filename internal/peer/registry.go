package peer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/metrics"
)

type RegistryConfig struct {
	// MaxPeers caps concurrently registered peers. Zero means unlimited.
	MaxPeers int
	// JoinGrace is how long a peer may stay connected without joining a
	// lobby. Zero disables the timer.
	JoinGrace time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Registry owns the set of connected peers.
type Registry struct {
	cfg     RegistryConfig
	metrics *metrics.Metrics
	log     *slog.Logger

	mu    sync.Mutex
	peers map[int]*Peer
}

func NewRegistry(cfg RegistryConfig) *Registry {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		cfg:     cfg,
		metrics: cfg.Metrics,
		log:     log,
		peers:   make(map[int]*Peer),
	}
}

// Register allocates a peer for ch. When the registry is full ch is closed and
// ErrTooManyPeers is returned.
func (r *Registry) Register(ch Channel) (*Peer, error) {
	for attempt := 0; attempt < 3; attempt++ {
		id, err := newID()
		if err != nil {
			ch.Close()
			return nil, err
		}

		r.mu.Lock()
		if r.cfg.MaxPeers > 0 && len(r.peers) >= r.cfg.MaxPeers {
			r.mu.Unlock()
			r.metrics.Inc(metrics.DropReasonTooManyPeers)
			ch.Close()
			return nil, ErrTooManyPeers
		}
		if _, ok := r.peers[id]; ok {
			r.mu.Unlock()
			continue
		}

		p := &Peer{id: id, ch: ch}
		if r.cfg.JoinGrace > 0 {
			p.joinTimer = time.AfterFunc(r.cfg.JoinGrace, func() { r.expire(p) })
		}
		r.peers[id] = p
		r.mu.Unlock()

		r.metrics.Inc(metrics.PeersRegistered)
		return p, nil
	}

	ch.Close()
	return nil, ErrIDSpaceExhausted
}

func (r *Registry) expire(p *Peer) {
	if !p.expireJoin() {
		return
	}
	r.metrics.Inc(metrics.PeersJoinTimeout)
	r.log.Info("peer did not join a lobby in time", "peer_id", p.ID(), "grace", r.cfg.JoinGrace)
}

// Unregister removes p and cancels its join timer. It is idempotent.
func (r *Registry) Unregister(p *Peer) {
	p.mu.Lock()
	already := p.closed
	p.closed = true
	p.stopTimerLocked()
	p.mu.Unlock()
	if already {
		return
	}

	r.mu.Lock()
	if r.peers[p.id] == p {
		delete(r.peers, p.id)
	}
	r.mu.Unlock()
	r.metrics.Inc(metrics.PeersUnregistered)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
