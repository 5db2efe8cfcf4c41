package ws

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

type HubState int

const (
	StateClosed HubState = iota
	StateClosing
	StateRunning
)

// ConnHub owns every live transport connection, keyed by its ephemeral
// connection id. A single goroutine drains the connect, disconnect and
// inbound-packet channels, so packet handlers observe connection churn in a
// single serialized order.
type ConnHub struct {
	conns map[string]Conn

	connectChan chan Conn

	disconnectChan chan Conn
	// in is used to send incoming packets to the hub loop
	in chan *InPacket
	// exit is used to signal that the hub should stop accepting new
	// connections and exit
	exit chan struct{}

	logger *slog.Logger

	onConnect func(Conn)

	onDisconnect func(Conn)

	baseCtx context.Context

	wg sync.WaitGroup

	onPacket func(*InPacket)

	connFactory ConnFactory

	authenticator Authenticator

	closeTimeout time.Duration

	state HubState
	mu    sync.RWMutex
}

func New(cf ConnFactory, a Authenticator, opts ...HubOption) *ConnHub {
	hub := &ConnHub{
		conns:          make(map[string]Conn),
		connectChan:    make(chan Conn),
		disconnectChan: make(chan Conn),
		in:             make(chan *InPacket),
		exit:           make(chan struct{}),
		logger: slog.New(slog.NewTextHandler(os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelInfo})),
		baseCtx:       context.TODO(),
		closeTimeout:  time.Second * 10,
		authenticator: a,
		connFactory:   cf,
		state:         StateClosed,
	}

	for _, opt := range opts {
		opt(hub)
	}

	return hub
}

type HubOption func(*ConnHub)

func WithLogger(logger *slog.Logger) HubOption {
	return func(h *ConnHub) {
		h.logger = logger
	}
}

func WithBaseContext(ctx context.Context) HubOption {
	return func(h *ConnHub) {
		h.baseCtx = ctx
	}
}

func WithCloseTimeout(d time.Duration) HubOption {
	return func(h *ConnHub) {
		h.closeTimeout = d
	}
}

func (hub *ConnHub) Start() {
	hub.wg.Add(1)
	go func() {
		defer func() {
			hub.wg.Done()
			hub.logger.Info("hub stopped")
		}()
		hub.start()
	}()
	hub.logger.Info("hub started")
}

func (hub *ConnHub) start() {
	hub.mu.Lock()
	hub.state = StateRunning
	hub.mu.Unlock()
	defer func() {
		hub.mu.Lock()
		hub.state = StateClosed
		hub.mu.Unlock()
	}()
	for {
		select {
		case <-hub.exit:
			return
		case newC := <-hub.connectChan:
			hub.connect(newC)
		case c := <-hub.disconnectChan:
			hub.disconnect(c)
		case packetIn := <-hub.in:
			if hub.onPacket != nil {
				hub.onPacket(packetIn)
			}
		}
	}
}

func (hub *ConnHub) OnPacket(f func(*InPacket)) {
	hub.onPacket = f
}

func (hub *ConnHub) OnConnect(f func(Conn)) {
	hub.onConnect = f
}

func (hub *ConnHub) OnDisconnect(f func(Conn)) {
	hub.onDisconnect = f
}

// Close starts closing the hub.
// The closing sequence is as follows:
//  1. Deregister every connection from the hub, then signal its handler
//     goroutines to close the connection and exit.
//  2. Signal the hub main goroutine to exit.
func (hub *ConnHub) Close() {
	hub.logger.Info("closing connections...")
	if hub.state != StateRunning {
		return
	}
	hub.mu.Lock()
	hub.state = StateClosing
	conns := make([]Conn, 0, len(hub.conns))
	for _, c := range hub.conns {
		conns = append(conns, c)
	}
	hub.mu.Unlock()
	for _, c := range conns {
		hub.disconnect(c)
	}
	hub.logger.Info("exiting hub...")
	close(hub.exit)
	timer := time.NewTimer(hub.closeTimeout)
	defer timer.Stop()
	done := make(chan struct{})
	go func() {
		hub.wg.Wait()
		close(done)
	}()

	select {
	case <-timer.C:
		hub.logger.Info("hub closed with timeout")
	case <-done:
		hub.logger.Info("hub closed gracefully")
	}
}

func (hub *ConnHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := hub.authenticator.Authenticate(w, r)
	if !ok {
		hub.logger.Debug("authenticator rejected connection")
		return
	}
	conn, ok := hub.connFactory.NewConn(w, r, hub, uuid.NewString(), claims)
	if !ok {
		return
	}
	hub.Connect(conn)
}

func (hub *ConnHub) startConn(conn Conn) {
	hub.wg.Add(1)
	go func() {
		defer hub.wg.Done()
		conn.readLoop()
	}()

	hub.wg.Add(1)
	go func() {
		defer hub.wg.Done()
		conn.writeLoop()
	}()
}

// sendOrDisconnect sends a packet to a client. If the send channel of the
// client is blocked, it disconnects the client.
func (hub *ConnHub) sendOrDisconnect(c Conn, p *OutPacket) {
	select {
	case c.pass() <- p:
	default:
		go hub.Disconnect(c)
	}
}

func (hub *ConnHub) Connect(c Conn) {
	hub.connectChan <- c
}

func (hub *ConnHub) Disconnect(c Conn) {
	hub.disconnectChan <- c
}

func (hub *ConnHub) pass(packet *InPacket) {
	hub.in <- packet
}

func (hub *ConnHub) connect(c Conn) {
	hub.startConn(c)
	hub.mu.Lock()
	hub.conns[c.ID()] = c
	hub.mu.Unlock()
	hub.logger.Info("new connection", slog.String("conn.id", c.ID()),
		slog.String("user.id", c.Claims().UserID))
	if hub.onConnect != nil {
		hub.onConnect(c)
	}
}

func (hub *ConnHub) disconnect(c Conn) {
	hub.mu.Lock()
	_, ok := hub.conns[c.ID()]
	if ok {
		delete(hub.conns, c.ID())
	}
	hub.mu.Unlock()
	if !ok {
		return
	}
	c.close()
	if hub.onDisconnect != nil {
		hub.onDisconnect(c)
	}
}

// SendToConn sends a packet to a single connection. Unknown connection ids
// are dropped.
func (hub *ConnHub) SendToConn(id string, p *OutPacket) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	c, ok := hub.conns[id]
	if !ok {
		return
	}
	hub.sendOrDisconnect(c, p)
}

// SendToConns sends a packet to a list of connections.
func (hub *ConnHub) SendToConns(p *OutPacket, ids ...string) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for _, id := range ids {
		c, ok := hub.conns[id]
		if !ok {
			continue
		}
		hub.sendOrDisconnect(c, p)
	}
}

// Broadcast sends a packet to every connection on the hub.
func (hub *ConnHub) Broadcast(p *OutPacket) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for _, c := range hub.conns {
		hub.sendOrDisconnect(c, p)
	}
}

// BroadcastExcept sends a packet to every connection except the given one.
func (hub *ConnHub) BroadcastExcept(exceptID string, p *OutPacket) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for id, c := range hub.conns {
		if id == exceptID {
			continue
		}
		hub.sendOrDisconnect(c, p)
	}
}

// Len returns the number of live connections.
func (hub *ConnHub) Len() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.conns)
}
