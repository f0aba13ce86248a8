package ws

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Tk21111/drawsync/config"
	"github.com/Tk21111/drawsync/middleware"
	"github.com/gorilla/websocket"
)

// fakeTransport feeds ReadMessage from in and records written frames.
type fakeTransport struct {
	in      chan []byte
	written chan []byte
	closed  chan struct{}
	once    sync.Once

	mu       sync.Mutex
	writeErr error

	// stallControl makes WriteControl wait out its deadline, like a gorilla
	// conn whose write lock is held by a blocked writer.
	stallControl bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:      make(chan []byte, 64),
		written: make(chan []byte, 1024),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.in:
		return websocket.TextMessage, msg, nil
	case <-f.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	err := f.writeErr
	f.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-f.closed:
		return errors.New("write on closed transport")
	default:
	}
	f.written <- data
	return nil
}

func (f *fakeTransport) WriteControl(_ int, _ []byte, deadline time.Time) error {
	if f.stallControl {
		time.Sleep(time.Until(deadline))
		return errors.New("write control: i/o timeout")
	}
	return nil
}

func (f *fakeTransport) SetReadLimit(int64)                {}
func (f *fakeTransport) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeTransport) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeTransport) SetPongHandler(func(string) error) {}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) failWrites(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

func mustEncode(t *testing.T, e config.DrawEvent) []byte {
	t.Helper()
	b, err := middleware.EncodeEvent(e)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

// readEvent waits for the next frame written to f.
func readEvent(t *testing.T, f *fakeTransport) config.DrawEvent {
	t.Helper()
	select {
	case frame := <-f.written:
		e, err := middleware.DecodeEvent(frame)
		if err != nil {
			t.Fatalf("decode written frame %s: %v", frame, err)
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a frame")
	}
	return config.DrawEvent{}
}

func expectNothing(t *testing.T, f *fakeTransport) {
	t.Helper()
	select {
	case frame := <-f.written:
		t.Fatalf("unexpected frame %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitClosed(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("connection %s did not close", c.ID())
	}
}

func waitTimeout() <-chan time.Time {
	return time.After(2 * time.Second)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
