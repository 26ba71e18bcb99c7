package metrics

import (
	"spreadwatch/internal/spread/connection"
	"spreadwatch/internal/spread/livestore"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "spreadwatch"

// Collectors groups the stream and signal metrics. It implements connection.Observer.
type Collectors struct {
	ConnectionState      prometheus.Gauge
	ReconnectsScheduled  prometheus.Counter
	ConstructionFailures prometheus.Counter
	MessagesReceived     *prometheus.CounterVec
	Updates              *prometheus.CounterVec

	ZScore       prometheus.Gauge
	HedgeRatio   prometheus.Gauge
	LatestSpread prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Stream connection state (0 unstarted, 1 connecting, 2 open, 3 closing, 4 closed).",
		}),
		ReconnectsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect timers armed.",
		}),
		ConstructionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_construction_failures_total",
			Help:      "Connection attempts that failed before any network activity.",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Stream messages by decode result.",
		}, []string{"result"}),
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Delivered messages by whether they changed the snapshot.",
		}, []string{"result"}),
		ZScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "z_score",
			Help:      "Last received spread z-score.",
		}),
		HedgeRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hedge_ratio",
			Help:      "Last known hedge ratio.",
		}),
		LatestSpread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latest_spread",
			Help:      "Last known spread.",
		}),
	}

	reg.MustRegister(
		c.ConnectionState,
		c.ReconnectsScheduled,
		c.ConstructionFailures,
		c.MessagesReceived,
		c.Updates,
		c.ZScore,
		c.HedgeRatio,
		c.LatestSpread,
	)
	return c
}

func (c *Collectors) StateChanged(s connection.State) {
	c.ConnectionState.Set(float64(s))
}

func (c *Collectors) ConstructionFailed() {
	c.ConstructionFailures.Inc()
}

func (c *Collectors) ReconnectScheduled() {
	c.ReconnectsScheduled.Inc()
}

func (c *Collectors) MessageReceived(malformed bool) {
	if malformed {
		c.MessagesReceived.WithLabelValues("malformed").Inc()
		return
	}
	c.MessagesReceived.WithLabelValues("decoded").Inc()
}

// UpdateApplied counts a delivered message and, when accepted, mirrors the snapshot.
func (c *Collectors) UpdateApplied(accepted bool, snap livestore.Snapshot) {
	if !accepted {
		c.Updates.WithLabelValues("ignored").Inc()
		return
	}
	c.Updates.WithLabelValues("accepted").Inc()

	if snap.ZScore != nil {
		c.ZScore.Set(*snap.ZScore)
	}
	if snap.HedgeRatio != nil {
		c.HedgeRatio.Set(*snap.HedgeRatio)
	}
	if snap.LatestSpread != nil {
		c.LatestSpread.Set(*snap.LatestSpread)
	}
}

var _ connection.Observer = (*Collectors)(nil)
