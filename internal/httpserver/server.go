// Package httpserver hosts the signaling service's HTTP surface: health and
// readiness probes, build info, ICE server discovery and any routes other
// packages mount on its mux.
package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/config"
)

type BuildInfo struct {
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

type EventFeedState string

const (
	EventFeedDisabled EventFeedState = "disabled"
	EventFeedOK       EventFeedState = "ok"
	EventFeedFailing  EventFeedState = "failing"
)

// Status is the live signaling state reported by /readyz.
type Status struct {
	Peers      int            `json:"peers"`
	MaxPeers   int            `json:"maxPeers"`
	Lobbies    int            `json:"lobbies"`
	MaxLobbies int            `json:"maxLobbies"`
	EventFeed  EventFeedState `json:"eventFeed"`
}

// PeersFull reports whether new signaling connections would be refused.
func (s Status) PeersFull() bool {
	return s.MaxPeers > 0 && s.Peers >= s.MaxPeers
}

type Options struct {
	Build BuildInfo
	// Status, if set, is sampled on every /readyz request.
	Status func() Status
}

type Server struct {
	log    *slog.Logger
	cfg    config.Config
	build  BuildInfo
	status func() Status

	serving atomic.Bool

	mux *http.ServeMux
	srv *http.Server
}

func New(cfg config.Config, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:    logger,
		cfg:    cfg,
		build:  opts.Build,
		status: opts.Status,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, s.build)
	})
	s.mux.HandleFunc("GET /webrtc/ice", s.withOriginPolicy(s.handleICEServers))
	s.mux.HandleFunc("OPTIONS /webrtc/ice", s.withOriginPolicy(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           chain(s.mux, accessLog(s.log), recoverPanics(s.log)),
		ReadHeaderTimeout: 5 * time.Second,
		// Signaling connections are hijacked and long-lived, so there are no
		// read/write timeouts.
	}
	return s
}

// Mux is for registering routes during startup, before Serve.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

func (s *Server) Serve(l net.Listener) error {
	s.serving.Store(true)
	s.log.Info("http server serving", "addr", l.Addr().String())
	return s.srv.Serve(l)
}

// Shutdown marks the server unready and stops accepting requests. Hijacked
// signaling connections are not tracked here.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serving.Store(false)
	return s.srv.Shutdown(ctx)
}

type readiness struct {
	Ready  bool    `json:"ready"`
	Reason string  `json:"reason,omitempty"`
	Status *Status `json:"status,omitempty"`
}

// handleReadyz fails while the server is not serving, the ICE configuration
// is invalid, or the peer cap is reached. A full lobby table or a failing
// event feed is reported but does not fail readiness: joins by name and
// signaling itself still work.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	resp := readiness{Ready: true}
	if s.status != nil {
		st := s.status()
		resp.Status = &st
	}

	switch {
	case !s.serving.Load():
		resp.Ready, resp.Reason = false, "not serving"
	case s.cfg.ICEConfigError() != nil:
		resp.Ready, resp.Reason = false, "invalid ICE configuration: "+s.cfg.ICEConfigError().Error()
	case resp.Status != nil && resp.Status.PeersFull():
		resp.Ready, resp.Reason = false, "peer capacity reached"
	}

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, resp)
}

func (s *Server) handleICEServers(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.ICEConfigError(); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}
	servers := s.cfg.ICEServers
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"iceServers": servers})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
