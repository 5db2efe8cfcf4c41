package ws

import (
	"net/http"
	"sync"
)

type MockConn struct {
	id     string
	claims Claims
	in     chan *OutPacket
	done   chan struct{}
	hub    Hub

	mu       sync.Mutex
	received []*OutPacket

	closeOnce sync.Once
	onClose   func()
}

func NewMockConn(id string, claims Claims, hub Hub) *MockConn {
	return &MockConn{
		id:     id,
		claims: claims,
		in:     make(chan *OutPacket, 16),
		done:   make(chan struct{}),
		hub:    hub,
	}
}

func (c *MockConn) pass() chan<- *OutPacket {
	return c.in
}

func (c *MockConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.onClose != nil {
			c.onClose()
		}
	})
}

func (c *MockConn) ID() string {
	return c.id
}

func (c *MockConn) Claims() Claims {
	return c.claims
}

func (c *MockConn) readLoop() {
	<-c.done
}

func (c *MockConn) writeLoop() {
	for {
		select {
		case p := <-c.in:
			c.mu.Lock()
			c.received = append(c.received, p)
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}

func (c *MockConn) Received() []*OutPacket {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*OutPacket, len(c.received))
	copy(out, c.received)
	return out
}

type MockConnFactory struct {
	shouldFail bool

	mu    sync.Mutex
	conns []*MockConn
}

func (f *MockConnFactory) NewConn(w http.ResponseWriter, r *http.Request,
	hub Hub, id string, claims Claims) (Conn, bool) {
	if f.shouldFail {
		return nil, false
	}
	conn := NewMockConn(id, claims, hub)
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()
	return conn, true
}

type MockAuthenticator struct {
	shouldFail bool
	claims     Claims
}

func (a *MockAuthenticator) Authenticate(w http.ResponseWriter, req *http.Request) (Claims, bool) {
	if a.shouldFail {
		return Claims{}, false
	}
	return a.claims, true
}
