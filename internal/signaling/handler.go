package signaling

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/lobby"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/peer"
)

var (
	ErrUnknownCommand     = errors.New("signaling: unknown command")
	ErrInvalidDestination = errors.New("signaling: invalid destination")
)

// Handler maps transport callbacks onto the peer registry and lobby manager.
// It holds no state of its own.
type Handler struct {
	peers   *peer.Registry
	lobbies *lobby.Manager
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewHandler(peers *peer.Registry, lobbies *lobby.Manager, m *metrics.Metrics, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		peers:   peers,
		lobbies: lobbies,
		metrics: m,
		log:     log,
	}
}

// Connect registers a new peer for ch.
func (h *Handler) Connect(ch peer.Channel) (*peer.Peer, error) {
	return h.peers.Register(ch)
}

// HandleFrame processes one inbound text frame from p. A non-nil error means
// the frame was rejected and the connection should be closed.
func (h *Handler) HandleFrame(p *peer.Peer, frame string) error {
	h.metrics.Inc(metrics.FramesReceived)

	// Frames read before an eviction reached the transport are dropped.
	if p.Evicted() {
		return peer.ErrPeerClosed
	}

	cmd, err := ParseFrame(frame)
	if err != nil {
		h.metrics.Inc(metrics.DropReasonMalformedFrame)
		return err
	}

	switch cmd.Code {
	case 'J':
		err = h.lobbies.CreateOrJoin(p, strings.TrimSpace(cmd.Arg))
	case 'S':
		err = h.lobbies.Seal(p)
	case 'O', 'A', 'C':
		var dest int
		dest, err = parseDestination(cmd.Arg)
		if err == nil {
			err = h.lobbies.Relay(p, cmd.Code, dest, cmd.Payload)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Code)
	}

	if err != nil {
		if isProtocolViolation(err) {
			h.metrics.Inc(metrics.DropReasonProtocolViolation)
		}
		h.log.Debug("rejected signaling command",
			"peer_id", p.ID(),
			"code", string(cmd.Code),
			"err", err,
		)
	}
	return err
}

// Disconnect removes p from its lobby and from the registry. It is safe to
// call more than once.
func (h *Handler) Disconnect(p *peer.Peer) {
	if h.lobbies.Leave(p) {
		h.log.Debug("host disconnected, lobby closed", "peer_id", p.ID())
	}
	h.peers.Unregister(p)
}

// parseDestination accepts a strictly decimal, positive handle.
func parseDestination(arg string) (int, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, ErrInvalidDestination
	}
	for i := 0; i < len(arg); i++ {
		if arg[i] < '0' || arg[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDestination, arg)
		}
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDestination, arg)
	}
	return n, nil
}

func isProtocolViolation(err error) bool {
	return errors.Is(err, ErrUnknownCommand) ||
		errors.Is(err, ErrInvalidDestination) ||
		errors.Is(err, lobby.ErrNotInLobby) ||
		errors.Is(err, lobby.ErrNotHost) ||
		errors.Is(err, lobby.ErrAlreadyInLobby)
}
