package core

import (
	"sync"
)

const (
	emitToConn    = "toConn"
	emitToUsers   = "toUsers"
	emitAll       = "all"
	emitAllExcept = "allExcept"
)

type emitted struct {
	Kind    string
	Event   string
	Payload interface{}
	ConnID  string
	UserIDs []string
	Except  string
}

// recordingEmitter records every emit in call order. It stands in for the
// transport layer in core tests.
type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{}
}

func (e *recordingEmitter) ToConn(connID string, event string, payload interface{}) {
	e.record(emitted{Kind: emitToConn, Event: event, Payload: payload, ConnID: connID})
}

func (e *recordingEmitter) ToUsers(event string, payload interface{}, userIDs ...string) {
	ids := make([]string, len(userIDs))
	copy(ids, userIDs)
	e.record(emitted{Kind: emitToUsers, Event: event, Payload: payload, UserIDs: ids})
}

func (e *recordingEmitter) All(event string, payload interface{}) {
	e.record(emitted{Kind: emitAll, Event: event, Payload: payload})
}

func (e *recordingEmitter) AllExcept(exceptConnID string, event string, payload interface{}) {
	e.record(emitted{Kind: emitAllExcept, Event: event, Payload: payload, Except: exceptConnID})
}

func (e *recordingEmitter) record(ev emitted) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *recordingEmitter) all() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]emitted, len(e.events))
	copy(out, e.events)
	return out
}

func (e *recordingEmitter) ofType(event string) []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emitted
	for _, ev := range e.events {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

func (e *recordingEmitter) count(event string) int {
	return len(e.ofType(event))
}

func (e *recordingEmitter) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = nil
}

// connsOf flattens the connection targets of every recorded emit of the
// given event type.
func (e *recordingEmitter) connsOf(event string) []string {
	var out []string
	for _, ev := range e.ofType(event) {
		if ev.Kind == emitToConn {
			out = append(out, ev.ConnID)
		}
	}
	return out
}
