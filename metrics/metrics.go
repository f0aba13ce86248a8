package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the hub collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "drawsync").
	Namespace string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Collector holds the hub metrics. A nil *Collector is valid and records
// nothing.
type Collector struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	eventsReceived    prometheus.Counter
	eventsRelayed     prometheus.Counter
	decodeErrors      prometheus.Counter
	slowPeers         prometheus.Counter
	relayDropped      prometheus.Counter
	fanout            prometheus.Histogram
}

func New(opts ...Option) *Collector {
	cfg := Config{
		Namespace: "drawsync",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	factory := promauto.With(cfg.Registry)
	ns := cfg.Namespace

	return &Collector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "connections_active",
			Help:      "Number of open drawing connections",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "connections_total",
			Help:      "Total number of connections registered with the hub",
		}),
		eventsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_received_total",
			Help:      "Draw events accepted from clients",
		}),
		eventsRelayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_relayed_total",
			Help:      "Draw events queued to peers",
		}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "decode_errors_total",
			Help:      "Malformed inbound payloads dropped",
		}),
		slowPeers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "slow_peer_disconnects_total",
			Help:      "Connections closed because their send buffer was full",
		}),
		relayDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "relay_dropped_total",
			Help:      "Frames not published to other hub instances because the outbox was full",
		}),
		fanout: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "broadcast_fanout",
			Help:      "Peers reached per broadcast",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
	}
}

func (c *Collector) ConnOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Inc()
	c.connectionsTotal.Inc()
}

func (c *Collector) ConnClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Dec()
}

func (c *Collector) EventReceived() {
	if c == nil {
		return
	}
	c.eventsReceived.Inc()
}

func (c *Collector) Broadcast(delivered int) {
	if c == nil {
		return
	}
	c.eventsRelayed.Add(float64(delivered))
	c.fanout.Observe(float64(delivered))
}

func (c *Collector) DecodeError() {
	if c == nil {
		return
	}
	c.decodeErrors.Inc()
}

func (c *Collector) SlowPeer() {
	if c == nil {
		return
	}
	c.slowPeers.Inc()
}

func (c *Collector) RelayDropped() {
	if c == nil {
		return
	}
	c.relayDropped.Inc()
}
