package realtime

import (
	"github.com/carebridge/realtime/ws"
)

// ConnResolver resolves a user id to its live connection id.
type ConnResolver interface {
	ConnIDOf(userID string) (string, bool)
}

// hubEmitter bridges the core's Emitter contract onto the websocket hub.
// The resolver is bound after the registry is constructed because the
// registry itself emits through this emitter.
type hubEmitter struct {
	hub      *ws.ConnHub
	resolver ConnResolver
}

func newHubEmitter(hub *ws.ConnHub) *hubEmitter {
	return &hubEmitter{hub: hub}
}

func (e *hubEmitter) BindResolver(r ConnResolver) {
	e.resolver = r
}

func (e *hubEmitter) ToConn(connID string, event string, payload interface{}) {
	e.hub.SendToConn(connID, &ws.OutPacket{Type: event, Payload: payload})
}

func (e *hubEmitter) ToUsers(event string, payload interface{}, userIDs ...string) {
	if e.resolver == nil {
		return
	}
	packet := &ws.OutPacket{Type: event, Payload: payload}
	for _, userID := range userIDs {
		connID, ok := e.resolver.ConnIDOf(userID)
		if !ok {
			continue
		}
		e.hub.SendToConn(connID, packet)
	}
}

func (e *hubEmitter) All(event string, payload interface{}) {
	e.hub.Broadcast(&ws.OutPacket{Type: event, Payload: payload})
}

func (e *hubEmitter) AllExcept(exceptConnID string, event string, payload interface{}) {
	e.hub.BroadcastExcept(exceptConnID, &ws.OutPacket{Type: event, Payload: payload})
}
