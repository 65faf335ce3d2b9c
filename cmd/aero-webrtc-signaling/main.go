package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/events"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/lobby"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/peer"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/signaling"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting aero-webrtc-signaling",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"max_peers", cfg.MaxPeers,
		"max_lobbies", cfg.MaxLobbies,
		"lobby_secret_length", cfg.LobbySecretLength,
		"join_grace_period", cfg.JoinGracePeriod,
		"signaling_ws_ping_interval", cfg.SignalingWSPingInterval,
		"signaling_ws_idle_timeout", cfg.SignalingWSIdleTimeout,
		"ice_servers", len(cfg.ICEServers),
		"redis_events", cfg.Redis.Enabled(),
	)
	if err := cfg.ICEConfigError(); err != nil {
		logger.Warn("invalid ICE server configuration; /webrtc/ice and /readyz will report it", "err", err)
	}

	logStartupSecurityWarnings(logger, cfg)

	m := metrics.New()

	var publisher events.Publisher = events.Nop{}
	var redisPublisher *events.RedisPublisher
	if cfg.Redis.Enabled() {
		rdb, err := events.ConnectRedis(context.Background(), cfg.Redis)
		if err != nil {
			logger.Error("failed to connect lobby event feed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		redisPublisher = events.NewRedisPublisher(rdb, cfg.Redis.EventsQueue, cfg.EventsBufferSize, m, logger)
		publisher = redisPublisher
		logger.Info("publishing lobby events", "redis_addr", cfg.Redis.Addr, "queue", cfg.Redis.EventsQueue)
	}

	peers := peer.NewRegistry(peer.RegistryConfig{
		MaxPeers:  cfg.MaxPeers,
		JoinGrace: cfg.JoinGracePeriod,
		Metrics:   m,
		Logger:    logger,
	})
	lobbies := lobby.NewManager(lobby.Config{
		MaxLobbies:   cfg.MaxLobbies,
		SecretLength: cfg.LobbySecretLength,
		Events:       publisher,
		Metrics:      m,
		Logger:       logger,
	})

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, builtAt := resolveBuildInfo(buildCommit, buildTime)
	var feed healthChecker
	if redisPublisher != nil {
		feed = redisPublisher
	}
	srv := httpserver.New(cfg, logger, httpserver.Options{
		Build:  httpserver.BuildInfo{Commit: commit, BuildTime: builtAt},
		Status: signalingStatus(cfg, peers, lobbies, feed),
	})

	sig := signaling.NewServer(signaling.Config{
		Handler:              signaling.NewHandler(peers, lobbies, m, logger),
		AllowedOrigins:       cfg.AllowedOrigins,
		PingInterval:         cfg.SignalingWSPingInterval,
		IdleTimeout:          cfg.SignalingWSIdleTimeout,
		MaxMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
		SendQueueLength:      cfg.SignalingSendQueueLength,
		Metrics:              m,
		Logger:               logger,
	})
	sig.RegisterRoutes(srv.Mux())

	srv.Mux().Handle("GET /metrics", prometheusHandler(m, peers, lobbies))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		sig.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}
	// Hijacked WebSocket connections are not covered by Shutdown.
	sig.Close()

	if redisPublisher != nil {
		if err := redisPublisher.Close(shutdownCtx); err != nil {
			logger.Warn("lobby event feed did not drain", "err", err)
		}
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
