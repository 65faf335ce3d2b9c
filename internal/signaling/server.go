package signaling

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/origin"
)

// Config wires together the runtime dependencies of the WebSocket transport.
type Config struct {
	Handler *Handler

	// AllowedOrigins is the browser Origin allow-list. Empty means same host
	// only.
	AllowedOrigins []string

	// PingInterval is how often keepalive pings are sent. Zero disables them.
	PingInterval time.Duration
	// IdleTimeout closes connections that send nothing (pongs included) for
	// this long. Zero disables it.
	IdleTimeout time.Duration

	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	SendQueueLength      int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server is the signaling WebSocket endpoint.
//
// Endpoints:
//   - GET /              : signaling WebSocket
//   - GET /webrtc/signal : signaling WebSocket
type Server struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:   cfg,
		log:   log,
		conns: make(map[*wsConn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleWebSocketSignal)
	mux.HandleFunc("GET /webrtc/signal", s.handleWebSocketSignal)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if _, ok := origin.CheckRequest(r, s.cfg.AllowedOrigins); !ok {
		s.cfg.Metrics.Inc(metrics.DropReasonOriginRejected)
		return false
	}
	return true
}

// Close closes every open connection with 1001 (going away) and waits for
// their handlers to exit. New upgrades are refused afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
	s.wg.Wait()
}

func (s *Server) track(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) handleWebSocketSignal(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newWSConn(conn, s.cfg.SendQueueLength, s.cfg.PingInterval, s.cfg.Metrics)
	if !s.track(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait))
		_ = conn.Close()
		return
	}
	defer s.untrack(c)

	go c.writeLoop()
	defer func() { <-c.writerDone }()

	p, err := s.cfg.Handler.Connect(c)
	if err != nil {
		// The registry has already closed c.
		s.log.Warn("refusing signaling connection", "remote", r.RemoteAddr, "err", err)
		return
	}
	s.log.Debug("signaling connection opened", "peer_id", p.ID(), "remote", r.RemoteAddr)

	defer func() {
		s.cfg.Handler.Disconnect(p)
		c.Close()
		s.log.Debug("signaling connection closed", "peer_id", p.ID(), "code", c.closeCode, "reason", c.closeReason)
	}()

	if s.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	if idle := s.cfg.IdleTimeout; idle > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(idle))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(idle))
		})
	}

	var limiter *rate.Limiter
	if n := s.cfg.MaxMessagesPerSecond; n > 0 {
		limiter = rate.NewLimiter(rate.Limit(n), n)
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case isTimeout(err):
				c.closeWith(websocket.CloseNormalClosure, "idle timeout")
			case errors.Is(err, websocket.ErrReadLimit):
				c.closeWith(websocket.CloseMessageTooBig, "message too big")
			}
			return
		}
		if idle := s.cfg.IdleTimeout; idle > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(idle))
		}

		// Checked after the read so that bytes already buffered are consumed
		// and the client reliably sees the close code.
		if limiter != nil && !limiter.Allow() {
			s.cfg.Metrics.Inc(metrics.DropReasonRateLimited)
			c.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
		if msgType != websocket.TextMessage {
			s.cfg.Metrics.Inc(metrics.DropReasonNonTextFrame)
			c.closeWith(websocket.CloseUnsupportedData, "expected text message")
			return
		}
		if err := s.cfg.Handler.HandleFrame(p, string(data)); err != nil {
			c.closeWith(websocket.ClosePolicyViolation, err.Error())
			return
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
