package irc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the kernel's Prometheus collectors.
type Metrics struct {
	// EventsTotal counts dequeued events by kind
	EventsTotal *prometheus.CounterVec

	// CommandsTotal counts dispatched protocol commands by name
	CommandsTotal *prometheus.CounterVec

	// EventDuration measures time spent processing one event
	EventDuration prometheus.Histogram

	PingsTotal    prometheus.Counter
	TimeoutsTotal prometheus.Counter
	OutboundLines prometheus.Counter
	Tracked       prometheus.Gauge
}

// NewMetrics registers the kernel collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ircd_events_total",
				Help: "Total number of inbound queue events by kind",
			},
			[]string{"kind"},
		),
		CommandsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ircd_commands_total",
				Help: "Total number of dispatched protocol commands",
			},
			[]string{"command"},
		),
		EventDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ircd_event_duration_seconds",
			Help:    "Event processing latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		PingsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "ircd_pings_total",
			Help: "PINGs sent to idle connections",
		}),
		TimeoutsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "ircd_timeouts_total",
			Help: "Connections dropped for an unanswered PING",
		}),
		OutboundLines: f.NewCounter(prometheus.CounterOpts{
			Name: "ircd_outbound_lines_total",
			Help: "Lines pushed to front-end queues",
		}),
		Tracked: f.NewGauge(prometheus.GaugeOpts{
			Name: "ircd_tracked_connections",
			Help: "Connections under liveness tracking",
		}),
	}
}
