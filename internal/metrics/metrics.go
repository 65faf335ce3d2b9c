package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter names. They are exported as the `event` label of
// aero_webrtc_signaling_events_total.
const (
	PeersRegistered       = "peers_registered"
	PeersUnregistered     = "peers_unregistered"
	PeersJoinTimeout      = "peers_join_timeout"
	LobbiesCreated        = "lobbies_created"
	LobbiesSealed         = "lobbies_sealed"
	LobbiesDestroyed      = "lobbies_destroyed"
	PeersJoined           = "peers_joined"
	PeersLeft             = "peers_left"
	RelayForwarded        = "relay_forwarded"
	FramesReceived        = "frames_received"
	SendQueueOverflow     = "send_queue_overflow"
	EventsPublished       = "events_published"
	EventsPublishFailures = "events_publish_failures"
	EventsDropped         = "events_dropped"
)

// Rejection reasons.
const (
	DropReasonTooManyPeers       = "too_many_peers"
	DropReasonTooManyLobbies     = "too_many_lobbies"
	DropReasonMalformedFrame     = "malformed_frame"
	DropReasonProtocolViolation  = "protocol_violation"
	DropReasonLobbyNotFound      = "lobby_not_found"
	DropReasonLobbySealed        = "lobby_sealed"
	DropReasonUnknownDestination = "unknown_destination"
	DropReasonRateLimited        = "rate_limited"
	DropReasonNonTextFrame       = "non_text_frame"
	DropReasonOriginRejected     = "origin_rejected"
)

var eventsDesc = prometheus.NewDesc(
	"aero_webrtc_signaling_events_total",
	"Internal event counters.",
	[]string{"event"},
	nil,
)

// Metrics is a concurrency-safe counter registry. The zero value is ready to
// use and a nil *Metrics discards everything.
//
// It implements prometheus.Collector so the counters can be scraped without
// each call site owning a prometheus.Counter.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of every counter.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64)
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.m {
		out[k] = v
	}
	return out
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- eventsDesc
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for name, v := range m.Snapshot() {
		ch <- prometheus.MustNewConstMetric(eventsDesc, prometheus.CounterValue, float64(v), name)
	}
}
