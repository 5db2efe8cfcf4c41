package ws

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
)

// InPacket is a packet received from a client. The payload is kept raw and
// decoded into a specific type by the handler that owns the event type.
type InPacket struct {
	ConnID  string          `json:"-"`
	Claims  Claims          `json:"-"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (p InPacket) String() string {
	return fmt.Sprintf("InPacket{Conn: %s, Type: %s, Payload.Size: %d}", p.ConnID, p.Type, len(p.Payload))
}

// OutPacket is a packet sent to a client.
type OutPacket struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func partiallyDecodeInPacket(t int, r io.Reader) (*InPacket, error) {
	if t != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected message type: %d", t)
	}

	var packet InPacket
	if err := json.NewDecoder(r).Decode(&packet); err != nil {
		return nil, fmt.Errorf("json.Decoder.Decode: %w", err)
	}
	return &packet, nil
}

func encodeOutPacket(f func(t int) (io.WriteCloser, error), packet *OutPacket) error {
	w, err := f(websocket.TextMessage)
	if err != nil {
		return fmt.Errorf("NextWriter: %w", err)
	}
	defer w.Close()

	if err := json.NewEncoder(w).Encode(packet); err != nil {
		return fmt.Errorf("json.Encoder.Encode: %w", err)
	}

	return nil
}
