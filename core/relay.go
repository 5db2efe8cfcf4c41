package core

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AdminDashboardRoom is the well-known broadcast room admin dashboards
// subscribe to.
const AdminDashboardRoom = "admin:dashboard"

// Message is a live chat message. It only exists in flight; durability, if
// any, is the caller's concern before handing the message to the relay.
type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"roomId,omitempty"`
	ReceiverID string    `json:"receiverId,omitempty"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	SenderRole Role      `json:"senderRole,omitempty"`
	Body       string    `json:"message"`
	SentAt     time.Time `json:"sentAt"`
	Read       bool      `json:"read"`
}

type RoomEventPayload struct {
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

type TypingPayload struct {
	RoomID      string `json:"roomId,omitempty"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

type MessageReadPayload struct {
	MessageID string    `json:"messageId"`
	ReaderID  string    `json:"readerId"`
	ReadAt    time.Time `json:"readAt"`
}

type DashboardSnapshot struct {
	Counts
	At time.Time `json:"at"`
}

// Relay delivers presence notifications, direct and room-scoped messages,
// typing indicators and read receipts. Delivery is fire and forget: a
// recipient without a live connection never sees the message and no failure
// is surfaced to the sender.
type Relay struct {
	registry *Registry
	rooms    *RoomDirectory
	emitter  Emitter
	logger   *slog.Logger

	mu sync.Mutex
	// typing tracks who is typing per room. Entries are cleared by stop
	// events or by the room membership going away; clients apply a soft
	// timeout on top as a backstop.
	typing map[string]map[string]string
}

func NewRelay(registry *Registry, rooms *RoomDirectory, emitter Emitter, logger *slog.Logger) *Relay {
	return &Relay{
		registry: registry,
		rooms:    rooms,
		emitter:  emitter,
		logger:   logger,
		typing:   make(map[string]map[string]string),
	}
}

// JoinRoom subscribes the user to a room and announces the join to the
// room's members.
func (rl *Relay) JoinRoom(roomID, userID string) {
	rl.rooms.Join(roomID, userID)
	payload := RoomEventPayload{RoomID: roomID, UserID: userID}
	if identity, ok := rl.registry.Lookup(userID); ok {
		payload.DisplayName = identity.DisplayName
	}
	rl.emitter.ToUsers(EventChatUserJoined, payload, rl.rooms.Members(roomID)...)
}

// LeaveRoom unsubscribes the user and announces the leave to the remaining
// members. Leaving a room the user never joined is a no-op.
func (rl *Relay) LeaveRoom(roomID, userID string) {
	if !rl.rooms.IsMember(roomID, userID) {
		return
	}
	payload := RoomEventPayload{RoomID: roomID, UserID: userID}
	if identity, ok := rl.registry.Lookup(userID); ok {
		payload.DisplayName = identity.DisplayName
	}
	rl.rooms.Leave(roomID, userID)
	rl.clearTyping(roomID, userID)
	rl.emitter.ToUsers(EventChatUserLeft, payload, rl.rooms.Members(roomID)...)
}

// SendMessage constructs a message and delivers it live. Exactly one of
// roomID and receiverID is expected to be set; the dispatcher enforces
// that. Room messages go to every member at call time, the sender included.
// Direct messages go to the receiver and echo back to the sender.
func (rl *Relay) SendMessage(senderID, roomID, receiverID, body string) Message {
	msg := Message{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		ReceiverID: receiverID,
		SenderID:   senderID,
		Body:       body,
		SentAt:     time.Now(),
		Read:       false,
	}
	if identity, ok := rl.registry.Lookup(senderID); ok {
		msg.SenderName = identity.DisplayName
		msg.SenderRole = identity.Role
	}

	if roomID != "" {
		rl.emitter.ToUsers(EventChatNewMessage, msg, rl.rooms.Members(roomID)...)
		return msg
	}

	targets := []string{receiverID}
	if receiverID != senderID {
		targets = append(targets, senderID)
	}
	rl.emitter.ToUsers(EventChatNewMessage, msg, targets...)
	return msg
}

// StartTyping records the user as typing and notifies the other parties.
func (rl *Relay) StartTyping(roomID, receiverID, userID, displayName string) {
	payload := TypingPayload{RoomID: roomID, UserID: userID, DisplayName: displayName}
	if roomID != "" {
		rl.mu.Lock()
		byRoom, ok := rl.typing[roomID]
		if !ok {
			byRoom = make(map[string]string)
			rl.typing[roomID] = byRoom
		}
		byRoom[userID] = displayName
		rl.mu.Unlock()
		rl.emitter.ToUsers(EventChatUserTyping, payload, rl.othersIn(roomID, userID)...)
		return
	}
	rl.emitter.ToUsers(EventChatUserTyping, payload, receiverID)
}

// StopTyping clears the typing state and notifies the other parties.
func (rl *Relay) StopTyping(roomID, receiverID, userID string) {
	payload := TypingPayload{RoomID: roomID, UserID: userID}
	if roomID != "" {
		rl.clearTyping(roomID, userID)
		rl.emitter.ToUsers(EventChatUserStoppedTyping, payload, rl.othersIn(roomID, userID)...)
		return
	}
	rl.emitter.ToUsers(EventChatUserStoppedTyping, payload, receiverID)
}

// TypingUsers returns the user ids currently marked as typing in a room.
func (rl *Relay) TypingUsers(roomID string) []string {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	byRoom, ok := rl.typing[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(byRoom))
	for userID := range byRoom {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}

func (rl *Relay) clearTyping(roomID, userID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	byRoom, ok := rl.typing[roomID]
	if !ok {
		return
	}
	delete(byRoom, userID)
	if len(byRoom) == 0 {
		delete(rl.typing, roomID)
	}
}

// MarkRead notifies the original sender that a message was read.
func (rl *Relay) MarkRead(messageID, senderID, readerID string) {
	rl.emitter.ToUsers(EventChatMessageRead, MessageReadPayload{
		MessageID: messageID,
		ReaderID:  readerID,
		ReadAt:    time.Now(),
	}, senderID)
}

// SubscribeAdminDashboard joins the dashboard broadcast room and returns an
// immediate snapshot to the subscribing connection.
func (rl *Relay) SubscribeAdminDashboard(connID, userID string) {
	rl.rooms.Join(AdminDashboardRoom, userID)
	rl.emitter.ToConn(connID, EventAdminDashboardData, rl.snapshot())
}

// BroadcastDashboard pushes a fresh snapshot to every dashboard subscriber.
func (rl *Relay) BroadcastDashboard() {
	members := rl.rooms.Members(AdminDashboardRoom)
	if len(members) == 0 {
		return
	}
	rl.emitter.ToUsers(EventAdminDashboardData, rl.snapshot(), members...)
}

func (rl *Relay) snapshot() DashboardSnapshot {
	return DashboardSnapshot{Counts: rl.registry.Counts(), At: time.Now()}
}

func (rl *Relay) othersIn(roomID, userID string) []string {
	members := rl.rooms.Members(roomID)
	out := members[:0]
	for _, m := range members {
		if m != userID {
			out = append(out, m)
		}
	}
	return out
}
