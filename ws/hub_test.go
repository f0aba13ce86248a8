package ws

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Tk21111/drawsync/config"
)

func serveFake(t *testing.T, h *Hub, opts ...ConnOption) (*Conn, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	c := newConn(ft, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	before := h.Len()
	go h.Serve(ctx, c)
	waitFor(t, func() bool { return h.Len() > before || c.State() == Closed })
	return c, ft
}

type auditLog struct {
	mu     sync.Mutex
	opened []config.Session
	closed []config.Session
}

func (a *auditLog) RecordOpen(s config.Session) {
	a.mu.Lock()
	a.opened = append(a.opened, s)
	a.mu.Unlock()
}

func (a *auditLog) RecordClose(s config.Session) {
	a.mu.Lock()
	a.closed = append(a.closed, s)
	a.mu.Unlock()
}

func (a *auditLog) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.opened), len(a.closed)
}

func TestHub_BroadcastExcludesSender(t *testing.T) {
	h := NewHub()
	_, a := serveFake(t, h)
	_, b := serveFake(t, h)
	_, c := serveFake(t, h)

	ev := config.Drawing(0.125, 0.1667, 0.25, 0.25, "red")
	a.in <- mustEncode(t, ev)

	if got := readEvent(t, b); got != ev {
		t.Fatalf("B got %+v, want %+v", got, ev)
	}
	if got := readEvent(t, c); got != ev {
		t.Fatalf("C got %+v, want %+v", got, ev)
	}
	expectNothing(t, a)
}

func TestHub_BroadcastNilSourceReachesEveryone(t *testing.T) {
	h := NewHub()
	_, a := serveFake(t, h)
	_, b := serveFake(t, h)

	if n := h.Broadcast(nil, config.Drawing(0, 0, 1, 1, "blue")); n != 2 {
		t.Fatalf("delivered=%d, want 2", n)
	}
	readEvent(t, a)
	readEvent(t, b)
}

func TestHub_PeerDisconnectDoesNotAffectOthers(t *testing.T) {
	h := NewHub()
	connA, a := serveFake(t, h)
	connB, b := serveFake(t, h)
	_, c := serveFake(t, h)

	b.Close()
	waitClosed(t, connB)

	ev := config.Drawing(0.1, 0.2, 0.3, 0.4, "green")
	a.in <- mustEncode(t, ev)

	if got := readEvent(t, c); got != ev {
		t.Fatalf("C got %+v, want %+v", got, ev)
	}
	if connA.State() != Open {
		t.Fatalf("sender must stay open, state=%v", connA.State())
	}
	waitFor(t, func() bool { return h.Len() == 2 })
}

func TestHub_FailingPeerWriteIsolated(t *testing.T) {
	h := NewHub()
	connA, a := serveFake(t, h)
	connB, b := serveFake(t, h)
	_, c := serveFake(t, h)

	b.failWrites(fmt.Errorf("broken pipe"))

	ev := config.Drawing(0.5, 0.5, 0.6, 0.6, "red")
	a.in <- mustEncode(t, ev)

	if got := readEvent(t, c); got != ev {
		t.Fatalf("C got %+v", got)
	}
	waitClosed(t, connB)
	if connA.State() != Open {
		t.Fatalf("sender must stay open")
	}

	// later events still flow to the surviving peer
	a.in <- mustEncode(t, ev)
	readEvent(t, c)
}

func TestHub_SlowPeerClosedOthersServed(t *testing.T) {
	h := NewHub()

	slowT := newFakeTransport()
	slow := newConn(slowT, WithSendBuffer(1))
	// open without a write pump so the queue never drains
	slow.state.Store(int32(Open))
	if err := h.Register(slow); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, c := serveFake(t, h)

	h.Broadcast(nil, config.Drawing(0, 0, 0.1, 0.1, "red"))
	h.Broadcast(nil, config.Drawing(0.1, 0.1, 0.2, 0.2, "red"))

	waitClosed(t, slow)
	readEvent(t, c)
	readEvent(t, c)
	waitFor(t, func() bool { return h.Len() == 1 })
}

func TestHub_SlowPeerOverflowDoesNotStallBroadcast(t *testing.T) {
	h := NewHub()

	slowT := newFakeTransport()
	slowT.stallControl = true
	slow := newConn(slowT, WithSendBuffer(1))
	slow.state.Store(int32(Open))
	if err := h.Register(slow); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, c := serveFake(t, h)

	h.Broadcast(nil, config.Drawing(0, 0, 0.1, 0.1, "red"))

	start := time.Now()
	h.Broadcast(nil, config.Drawing(0.1, 0.1, 0.2, 0.2, "red"))
	if took := time.Since(start); took > 200*time.Millisecond {
		t.Fatalf("overflowing broadcast took %v", took)
	}

	waitClosed(t, slow)
	readEvent(t, c)
	readEvent(t, c)
	waitFor(t, func() bool { return h.Len() == 1 })
}

func TestHub_PerSourceOrder(t *testing.T) {
	h := NewHub()
	_, a := serveFake(t, h)
	_, b := serveFake(t, h)

	const n = 200
	frames := make([][]byte, n)
	for i := range n {
		frames[i] = mustEncode(t, config.Drawing(float64(i)/n, 0, 0, 0, "black"))
	}
	go func() {
		for _, f := range frames {
			a.in <- f
		}
	}()

	for i := range n {
		got := readEvent(t, b)
		if want := float64(i) / n; got.X0 != want {
			t.Fatalf("event %d out of order: x0=%v, want %v", i, got.X0, want)
		}
	}
}

func TestHub_MalformedPayloadDropped(t *testing.T) {
	h := NewHub()
	connA, a := serveFake(t, h)
	_, b := serveFake(t, h)

	a.in <- []byte(`{"type":"drawing","x0":"left"}`)
	a.in <- []byte(`not json`)
	ev := config.Drawing(0.3, 0.3, 0.4, 0.4, "red")
	a.in <- mustEncode(t, ev)

	if got := readEvent(t, b); got != ev {
		t.Fatalf("B got %+v", got)
	}
	if connA.State() != Open {
		t.Fatalf("malformed payloads must not close the connection")
	}
	if got := connA.Stats().Dropped; got != 2 {
		t.Fatalf("dropped=%d, want 2", got)
	}
}

func TestHub_UnknownKindPassedThrough(t *testing.T) {
	h := NewHub()
	_, a := serveFake(t, h)
	_, b := serveFake(t, h)

	frame := []byte(`{"type":"cursor","x":0.5,"y":0.5}`)
	a.in <- frame

	select {
	case got := <-b.written:
		if !bytes.Equal(got, frame) {
			t.Fatalf("frame altered: %s", got)
		}
	case <-waitTimeout():
		t.Fatalf("unknown kind was not relayed")
	}
}

func TestHub_UnregisterOnClose(t *testing.T) {
	audit := &auditLog{}
	h := NewHub(WithAuditor(audit))
	connA, a := serveFake(t, h)
	_, _ = serveFake(t, h)

	if h.Len() != 2 {
		t.Fatalf("len=%d, want 2", h.Len())
	}

	a.Close()
	waitClosed(t, connA)
	waitFor(t, func() bool { return h.Len() == 1 })

	opened, closed := audit.counts()
	if opened != 2 || closed != 1 {
		t.Fatalf("audit opened=%d closed=%d, want 2/1", opened, closed)
	}

	// idempotent
	h.Unregister(connA)
	if _, closed := audit.counts(); closed != 1 {
		t.Fatalf("second unregister must not record again")
	}
}

func TestHub_RegisterRequiresOpen(t *testing.T) {
	h := NewHub()
	c := newConn(newFakeTransport())

	if err := h.Register(c); err != ErrNotOpen {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

func TestHub_CloseRejectsNewConnections(t *testing.T) {
	h := NewHub()
	connA, _ := serveFake(t, h)

	h.Close()
	waitClosed(t, connA)

	c := newConn(newFakeTransport())
	if err := h.Serve(context.Background(), c); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if c.State() != Closed {
		t.Fatalf("rejected connection must be closed")
	}
}

func TestHub_ConcurrentChurn(t *testing.T) {
	h := NewHub()
	_, stable := serveFake(t, h)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				ft := newFakeTransport()
				c := newConn(ft)
				done := make(chan struct{})
				go func() {
					h.Serve(context.Background(), c)
					close(done)
				}()
				h.Broadcast(nil, config.Drawing(0, 0, 1, 1, "red"))
				ft.Close()
				<-done
			}
		}()
	}

	for range 100 {
		h.Broadcast(nil, config.Drawing(0.5, 0.5, 0.5, 0.5, "blue"))
	}
	wg.Wait()

	waitFor(t, func() bool { return h.Len() == 1 })
	// the stable peer kept receiving throughout
	readEvent(t, stable)
}
