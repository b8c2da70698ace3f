package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metrics = struct {
	rooms        prometheus.Gauge
	participants prometheus.Gauge
	relayed      prometheus.Counter
	dropped      prometheus.Counter
	meets        prometheus.Counter
}{
	rooms: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "metachat",
		Name:      "rooms",
		Help:      "Number of rooms with at least one participant.",
	}),
	participants: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "metachat",
		Name:      "participants",
		Help:      "Number of connected participants.",
	}),
	relayed: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "metachat",
		Name:      "signals_relayed_total",
		Help:      "Signal payloads forwarded to their targets.",
	}),
	dropped: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "metachat",
		Name:      "signals_dropped_total",
		Help:      "Signal payloads dropped because the target had disconnected.",
	}),
	meets: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "metachat",
		Name:      "meets_created_total",
		Help:      "Meeting tokens created over the HTTP API.",
	}),
}
