package ws

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tk21111/drawsync/config"
	"github.com/Tk21111/drawsync/internal/logx"
	"github.com/Tk21111/drawsync/metrics"
	"github.com/Tk21111/drawsync/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrClosed         = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
	ErrNotOpen        = errors.New("connection not open")
)

type State int32

const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Transport is the subset of *websocket.Conn a Conn relies on.
type Transport interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type ConnStats struct {
	In      int64
	Out     int64
	Dropped int64
}

type connOptions struct {
	sendBuffer     int
	maxMessageSize int64
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	remoteAddr     string
	userAgent      string
	metrics        *metrics.Collector
}

type ConnOption func(*connOptions)

func WithSendBuffer(n int) ConnOption {
	return func(o *connOptions) {
		if n > 0 {
			o.sendBuffer = n
		}
	}
}

func WithMaxMessageSize(n int64) ConnOption {
	return func(o *connOptions) {
		o.maxMessageSize = n
	}
}

// WithTimeouts sets the write deadline and the heartbeat. A zero pongWait
// disables read deadlines and pings.
func WithTimeouts(writeWait, pongWait, pingPeriod time.Duration) ConnOption {
	return func(o *connOptions) {
		o.writeWait = writeWait
		o.pongWait = pongWait
		o.pingPeriod = pingPeriod
	}
}

func WithPeer(remoteAddr, userAgent string) ConnOption {
	return func(o *connOptions) {
		o.remoteAddr = remoteAddr
		o.userAgent = userAgent
	}
}

func WithConnMetrics(m *metrics.Collector) ConnOption {
	return func(o *connOptions) {
		o.metrics = m
	}
}

func ConnOptionsFromConfig(cfg config.Config) []ConnOption {
	return []ConnOption{
		WithSendBuffer(cfg.SendBuffer),
		WithMaxMessageSize(cfg.MaxMessageSize),
		WithTimeouts(cfg.WriteWait, cfg.PongWait, cfg.PingPeriod()),
	}
}

// Conn is one client's channel. Send never blocks; when the queue is full
// the connection closes itself instead of stalling the caller.
type Conn struct {
	id        string
	transport Transport
	opts      connOptions
	log       *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32
	receiving atomic.Bool

	mu      sync.Mutex
	onClose []func(*Conn)

	openedAt time.Time
	in       atomic.Int64
	out      atomic.Int64
	dropped  atomic.Int64
}

func newConn(t Transport, opts ...ConnOption) *Conn {
	o := connOptions{
		sendBuffer: 256,
		writeWait:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	c := &Conn{
		id:        id,
		transport: t,
		opts:      o,
		log:       logx.L.With(zap.String("conn_id", id)),
		send:      make(chan []byte, o.sendBuffer),
		done:      make(chan struct{}),
	}
	c.state.Store(int32(Connecting))
	return c
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Stats() ConnStats {
	return ConnStats{
		In:      c.in.Load(),
		Out:     c.out.Load(),
		Dropped: c.dropped.Load(),
	}
}

func (c *Conn) session() config.Session {
	s := c.Stats()
	return config.Session{
		ID:         c.id,
		RemoteAddr: c.opts.remoteAddr,
		UserAgent:  c.opts.userAgent,
		OpenedAt:   c.openedAt,
		EventsIn:   s.In,
		EventsOut:  s.Out,
		Dropped:    s.Dropped,
	}
}

// Start moves the connection to Open and starts the write pump.
func (c *Conn) Start() error {
	if !c.state.CompareAndSwap(int32(Connecting), int32(Open)) {
		return ErrNotOpen
	}
	c.openedAt = time.Now()
	go c.writePump()
	return nil
}

// OnClose registers fn to run once the connection is Closed. If it already
// is, fn runs immediately.
func (c *Conn) OnClose(fn func(*Conn)) {
	c.mu.Lock()
	if c.State() != Closed {
		c.onClose = append(c.onClose, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn(c)
}

// Close is idempotent and safe from any goroutine.
func (c *Conn) Close() error {
	return c.shutdown(true)
}

// shutdown closes the connection, sending a close frame first when
// farewell is set. Without it, shutdown never waits on the transport's
// write lock.
func (c *Conn) shutdown(farewell bool) error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state.Store(int32(Closed))
		callbacks := c.onClose
		c.onClose = nil
		c.mu.Unlock()

		close(c.done)

		if farewell {
			_ = c.transport.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
		}
		err = c.transport.Close()

		for _, fn := range callbacks {
			fn(c)
		}
	})
	return err
}

// Send encodes e and queues it for this peer.
func (c *Conn) Send(e config.DrawEvent) error {
	frame, err := middleware.EncodeEvent(e)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

// Transmit lets a Conn serve as a canvas.Transmitter.
func (c *Conn) Transmit(e config.DrawEvent) error {
	return c.Send(e)
}

func (c *Conn) enqueue(frame []byte) error {
	if c.State() == Closed {
		return ErrClosed
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.log.Warn("send_buffer_full", zap.Int("capacity", cap(c.send)))
		c.opts.metrics.SlowPeer()
		// the write pump may be stuck holding the write lock
		c.shutdown(false)
		return ErrSendBufferFull
	}
}

// Receive yields decoded events, each paired with the frame it was read
// from, until the transport fails or closes. Malformed frames are skipped.
// Events of unknown kind are yielded as-is. The sequence can be consumed
// once; later calls yield nothing. When it ends the Conn is Closed.
func (c *Conn) Receive() iter.Seq2[config.DrawEvent, []byte] {
	return func(yield func(config.DrawEvent, []byte) bool) {
		if !c.receiving.CompareAndSwap(false, true) {
			return
		}
		defer c.Close()

		if c.opts.maxMessageSize > 0 {
			c.transport.SetReadLimit(c.opts.maxMessageSize)
		}
		if c.opts.pongWait > 0 {
			c.transport.SetReadDeadline(time.Now().Add(c.opts.pongWait))
			c.transport.SetPongHandler(func(string) error {
				return c.transport.SetReadDeadline(time.Now().Add(c.opts.pongWait))
			})
		}

		for {
			_, msg, err := c.transport.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
					c.log.Debug("read_error", zap.Error(err))
				}
				return
			}
			c.in.Add(1)

			e, err := middleware.DecodeEvent(msg)
			if err != nil && !errors.Is(err, middleware.ErrUnknownKind) {
				c.dropped.Add(1)
				c.opts.metrics.DecodeError()
				c.log.Debug("drop_malformed", zap.Error(err))
				continue
			}

			if !yield(e, msg) {
				return
			}
		}
	}
}

func (c *Conn) writePump() {
	var tick <-chan time.Time
	if c.opts.pongWait > 0 && c.opts.pingPeriod > 0 {
		ticker := time.NewTicker(c.opts.pingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer c.Close()

	for {
		select {
		case msg := <-c.send:
			c.transport.SetWriteDeadline(time.Now().Add(c.opts.writeWait))
			if err := c.transport.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("write_error", zap.Error(err))
				return
			}
			c.out.Add(1)

		case <-tick:
			if err := c.transport.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.writeWait)); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// Dial opens a client-side Conn to a drawsync hub and starts its write pump.
func Dial(ctx context.Context, url string, opts ...ConnOption) (*Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	c := newConn(conn, opts...)
	if err := c.Start(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}
