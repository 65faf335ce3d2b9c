package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/metrics"
)

type sizer interface {
	Len() int
}

// prometheusHandler serves the event counters in m plus live peer and lobby
// gauges.
func prometheusHandler(m *metrics.Metrics, peers, lobbies sizer) http.Handler {
	reg := metrics.NewRegistry(m)
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "aero_webrtc_signaling_open_peers",
			Help: "Currently connected signaling peers.",
		}, func() float64 { return float64(peers.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "aero_webrtc_signaling_open_lobbies",
			Help: "Currently open lobbies.",
		}, func() float64 { return float64(lobbies.Len()) }),
	)
	return metrics.Handler(reg)
}
