package ws

import (
	"net/http"
)

// Claims is the identity the upstream authenticator attached to a
// connection. It is trusted as-is; verifying it is the authenticator's job.
type Claims struct {
	UserID      string
	Role        string
	DisplayName string
}

type Hub interface {
	Connect(Conn)
	Disconnect(Conn)
	Start()
	// Close closes the hub and releases any resources with a time out.
	// It should wait for the clean up to complete or until the time out.
	Close()
	// ServeHTTP handles the HTTP request and upgrades the connection to a
	// websocket connection then adds the connection to the hub.
	ServeHTTP(w http.ResponseWriter, r *http.Request)
	// pass passes an inbound packet to the hub.
	pass(*InPacket)

	OnPacket(func(*InPacket))

	OnConnect(func(Conn))

	OnDisconnect(func(Conn))
}

type ConnFactory interface {
	// NewConn creates a new connection from the request and response.
	// If the connection is created successfully, it should return the
	// connection and true, otherwise nil and false.
	NewConn(w http.ResponseWriter, r *http.Request, hub Hub, id string, claims Claims) (Conn, bool)
}

type Conn interface {
	// pass returns a write-only channel that the hub can use to send
	// packets to the client.
	pass() chan<- *OutPacket
	// close initiates the closing of the connection.
	// It should be non-blocking.
	close()
	// ID returns the ephemeral connection id. A user gets a fresh id for
	// every transport connection.
	ID() string
	// Claims returns the identity bound to the connection at upgrade time.
	Claims() Claims
	readLoop()
	writeLoop()
}

type Authenticator interface {
	// Authenticate authenticates the request and returns the identity
	// claims for the connection. Authenticate should be safe to be called
	// concurrently.
	Authenticate(w http.ResponseWriter, req *http.Request) (Claims, bool)
}

type AuthenticateFunc func(w http.ResponseWriter, req *http.Request) (Claims, bool)

func (f AuthenticateFunc) Authenticate(w http.ResponseWriter, req *http.Request) (Claims, bool) {
	return f(w, req)
}
