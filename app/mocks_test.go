package realtime

import (
	"sync"

	"github.com/carebridge/realtime/core"
)

// delivery is one event handed to a live connection by the wire.
type delivery struct {
	ConnID  string
	Event   string
	Payload interface{}
}

// recordingWire stands in for the hub-backed emitter. It tracks the set of
// live connections the way the hub does and resolves user ids through the
// registry, so dispatcher tests observe exactly what each connection would
// have been sent.
type recordingWire struct {
	mu         sync.Mutex
	resolver   ConnResolver
	conns      []string
	deliveries []delivery
}

func newRecordingWire() *recordingWire {
	return &recordingWire{}
}

func (w *recordingWire) BindResolver(r ConnResolver) {
	w.resolver = r
}

func (w *recordingWire) connect(connID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conns = append(w.conns, connID)
}

func (w *recordingWire) disconnect(connID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, id := range w.conns {
		if id == connID {
			w.conns = append(w.conns[:i], w.conns[i+1:]...)
			return
		}
	}
}

func (w *recordingWire) ToConn(connID string, event string, payload interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range w.conns {
		if id == connID {
			w.deliveries = append(w.deliveries, delivery{ConnID: connID, Event: event, Payload: payload})
			return
		}
	}
}

func (w *recordingWire) ToUsers(event string, payload interface{}, userIDs ...string) {
	for _, userID := range userIDs {
		if connID, ok := w.resolver.ConnIDOf(userID); ok {
			w.ToConn(connID, event, payload)
		}
	}
}

func (w *recordingWire) All(event string, payload interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range w.conns {
		w.deliveries = append(w.deliveries, delivery{ConnID: id, Event: event, Payload: payload})
	}
}

func (w *recordingWire) AllExcept(exceptConnID string, event string, payload interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range w.conns {
		if id == exceptConnID {
			continue
		}
		w.deliveries = append(w.deliveries, delivery{ConnID: id, Event: event, Payload: payload})
	}
}

// to returns every delivery of the given event that reached the given
// connection, in delivery order.
func (w *recordingWire) to(connID, event string) []delivery {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []delivery
	for _, d := range w.deliveries {
		if d.ConnID == connID && d.Event == event {
			out = append(out, d)
		}
	}
	return out
}

func (w *recordingWire) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deliveries = nil
}

var _ core.Emitter = (*recordingWire)(nil)
