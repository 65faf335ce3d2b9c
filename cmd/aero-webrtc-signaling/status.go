package main

import (
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/httpserver"
)

type healthChecker interface {
	Healthy() bool
}

// signalingStatus samples registry and manager sizes for /readyz. feed is nil
// when the event feed is disabled.
func signalingStatus(cfg config.Config, peers, lobbies sizer, feed healthChecker) func() httpserver.Status {
	return func() httpserver.Status {
		st := httpserver.Status{
			Peers:      peers.Len(),
			MaxPeers:   cfg.MaxPeers,
			Lobbies:    lobbies.Len(),
			MaxLobbies: cfg.MaxLobbies,
			EventFeed:  httpserver.EventFeedDisabled,
		}
		if feed != nil {
			st.EventFeed = httpserver.EventFeedOK
			if !feed.Healthy() {
				st.EventFeed = httpserver.EventFeedFailing
			}
		}
		return st
	}
}
