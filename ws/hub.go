package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Tk21111/drawsync/config"
	"github.com/Tk21111/drawsync/internal/logx"
	"github.com/Tk21111/drawsync/metrics"
	"github.com/Tk21111/drawsync/middleware"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "drawsync/ws"

// Auditor records connection lifecycles.
type Auditor interface {
	RecordOpen(config.Session)
	RecordClose(config.Session)
}

type HubOption func(*Hub)

func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *Hub) {
		h.log = l
	}
}

// WithInstanceID names this hub among others sharing a relay.
func WithInstanceID(id string) HubOption {
	return func(h *Hub) {
		if id != "" {
			h.id = id
		}
	}
}

func WithMetrics(m *metrics.Collector) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithTracer replaces the tracer taken from the global provider.
func WithTracer(t trace.Tracer) HubOption {
	return func(h *Hub) {
		if t != nil {
			h.tracer = t
		}
	}
}

func WithAuditor(a Auditor) HubOption {
	return func(h *Hub) {
		h.audit = a
	}
}

func WithRelay(r Relay) HubOption {
	return func(h *Hub) {
		h.relay = r
	}
}

// WithRelayRetry bounds the wait between relay resubscriptions.
func WithRelayRetry(minWait, maxWait time.Duration) HubOption {
	return func(h *Hub) {
		if minWait > 0 && maxWait >= minWait {
			h.retryMin = minWait
			h.retryMax = maxWait
		}
	}
}

// Hub is the registry of open connections. Every event read from one
// connection is queued to all the others.
type Hub struct {
	id      string
	log     *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
	audit   Auditor
	relay   Relay
	outbox  chan []byte

	retryMin time.Duration
	retryMax time.Duration

	mu     sync.RWMutex
	conns  map[*Conn]struct{}
	closed bool
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		id:       ksuid.New().String(),
		log:      logx.L,
		tracer:   otel.Tracer(tracerName),
		conns:    make(map[*Conn]struct{}),
		retryMin: 100 * time.Millisecond,
		retryMax: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.relay != nil {
		h.outbox = make(chan []byte, 4096)
	}
	return h
}

func (h *Hub) ID() string {
	return h.id
}

func (h *Hub) Metrics() *metrics.Collector {
	return h.metrics
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Snapshot copies the current registry.
func (h *Hub) Snapshot() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Register adds an Open connection. It is removed again as soon as it
// closes.
func (h *Hub) Register(c *Conn) error {
	if c.State() != Open {
		return ErrNotOpen
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.Close()
		return ErrClosed
	}
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()

	h.metrics.ConnOpened()
	if h.audit != nil {
		h.audit.RecordOpen(c.session())
	}
	c.log.Info("conn_open", zap.String("remote", c.opts.remoteAddr), zap.Int("clients", n))

	c.OnClose(h.Unregister)
	return nil
}

// Unregister is idempotent.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()

	if !ok {
		return
	}

	h.metrics.ConnClosed()
	s := c.session()
	s.ClosedAt = time.Now()
	if h.audit != nil {
		h.audit.RecordClose(s)
	}
	c.log.Info("conn_closed",
		zap.Int64("in", s.EventsIn),
		zap.Int64("out", s.EventsOut),
		zap.Int64("dropped", s.Dropped),
		zap.Int("clients", n),
	)
}

// Serve opens c, registers it and relays everything it receives until the
// transport closes or ctx is done.
func (h *Hub) Serve(ctx context.Context, c *Conn) error {
	ctx, span := h.tracer.Start(ctx, "ws.session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("drawsync.conn_id", c.ID()),
			attribute.String("drawsync.hub_id", h.id),
			attribute.String("drawsync.remote", c.opts.remoteAddr),
		),
	)
	defer func() {
		st := c.Stats()
		span.SetAttributes(
			attribute.Int64("drawsync.events_in", st.In),
			attribute.Int64("drawsync.events_out", st.Out),
			attribute.Int64("drawsync.dropped", st.Dropped),
		)
		span.End()
	}()

	if err := c.Start(); err != nil {
		c.Close()
		return err
	}
	if err := h.Register(c); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for e, frame := range c.Receive() {
		h.metrics.EventReceived()

		if !e.Kind.Known() {
			// newer clients may speak kinds this hub does not; pass them on
			h.relayFrame(c, frame)
			continue
		}
		h.Broadcast(c, e)
	}
	return nil
}

// Broadcast queues e to every open connection except src. A nil src reaches
// everyone. Failures are per peer and never reported to src.
func (h *Hub) Broadcast(src *Conn, e config.DrawEvent) int {
	frame, err := middleware.EncodeEvent(e)
	if err != nil {
		h.log.Debug("encode_failed", zap.Error(err))
		return 0
	}
	return h.relayFrame(src, frame)
}

func (h *Hub) relayFrame(src *Conn, frame []byte) int {
	n := h.fanOut(src, frame)
	h.publish(frame)
	return n
}

func (h *Hub) fanOut(src *Conn, frame []byte) int {
	h.mu.RLock()
	peers := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		if c != src {
			peers = append(peers, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range peers {
		if err := c.enqueue(frame); err != nil {
			if !errors.Is(err, ErrClosed) {
				c.log.Debug("relay_failed", zap.Error(err))
			}
			continue
		}
		delivered++
	}

	h.metrics.Broadcast(delivered)
	return delivered
}

// Close closes every connection and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	for _, c := range h.Snapshot() {
		c.Close()
	}
}
