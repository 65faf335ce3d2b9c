package main

import (
	"testing"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/httpserver"
)

type fixedHealth bool

func (h fixedHealth) Healthy() bool { return bool(h) }

func TestSignalingStatus(t *testing.T) {
	cfg := config.Config{MaxPeers: 4, MaxLobbies: 2}

	cases := []struct {
		name string
		feed healthChecker
		want httpserver.EventFeedState
	}{
		{name: "disabled", feed: nil, want: httpserver.EventFeedDisabled},
		{name: "ok", feed: fixedHealth(true), want: httpserver.EventFeedOK},
		{name: "failing", feed: fixedHealth(false), want: httpserver.EventFeedFailing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := signalingStatus(cfg, fixedSize(4), fixedSize(1), tc.feed)()
			if st.EventFeed != tc.want {
				t.Fatalf("EventFeed=%q, want %q", st.EventFeed, tc.want)
			}
			want := httpserver.Status{Peers: 4, MaxPeers: 4, Lobbies: 1, MaxLobbies: 2, EventFeed: tc.want}
			if st != want {
				t.Fatalf("status=%+v, want %+v", st, want)
			}
			if !st.PeersFull() {
				t.Fatalf("PeersFull()=false at the cap")
			}
		})
	}
}
