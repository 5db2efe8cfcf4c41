package core

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomActive  RoomStatus = "active"
	RoomEnded   RoomStatus = "ended"
)

// Participant is the per-member state of a video room.
type Participant struct {
	UserID          string    `json:"userId"`
	ConnID          string    `json:"connectionId"`
	Role            Role      `json:"role"`
	DisplayName     string    `json:"displayName"`
	AudioEnabled    bool      `json:"audioEnabled"`
	VideoEnabled    bool      `json:"videoEnabled"`
	IsScreenSharing bool      `json:"isScreenSharing"`
	JoinedAt        time.Time `json:"joinedAt"`
}

// RoomChatMessage is an entry of the in-room transcript. The transcript is
// volatile and lost when the room is purged.
type RoomChatMessage struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Body       string    `json:"message"`
	SentAt     time.Time `json:"sentAt"`
}

type videoRoom struct {
	id             string
	consultationID string
	status         RoomStatus
	// activated latches once both required roles have been present
	// simultaneously, so a departed party rejoining never re-fires the
	// consultation-started broadcast.
	activated    bool
	startTime    time.Time
	endTime      time.Time
	participants map[string]*Participant
	messages     []RoomChatMessage
	purge        *time.Timer
}

// VideoRoomSnapshot is a read-only copy of a room's state.
type VideoRoomSnapshot struct {
	RoomID         string            `json:"roomId"`
	ConsultationID string            `json:"consultationId"`
	Status         RoomStatus        `json:"status"`
	StartTime      time.Time         `json:"startTime"`
	EndTime        time.Time         `json:"endTime,omitempty"`
	Participants   []Participant     `json:"participants"`
	Messages       []RoomChatMessage `json:"messages"`
}

type VideoJoinedPayload struct {
	RoomID         string        `json:"roomId"`
	ConsultationID string        `json:"consultationId"`
	Status         RoomStatus    `json:"status"`
	Participants   []Participant `json:"participants"`
}

type VideoUserJoinedPayload struct {
	RoomID      string      `json:"roomId"`
	Participant Participant `json:"participant"`
}

type VideoUserLeftPayload struct {
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

type ConsultationStartedPayload struct {
	RoomID       string        `json:"roomId"`
	StartedAt    time.Time     `json:"startedAt"`
	Participants []Participant `json:"participants"`
}

type ConsultationEndedPayload struct {
	RoomID string `json:"roomId"`
	// Duration is endTime - startTime in whole seconds.
	Duration int    `json:"duration"`
	Reason   string `json:"reason"`
	EndedBy  string `json:"endedBy"`
}

type SignalPayload struct {
	RoomID     string          `json:"roomId"`
	FromUserID string          `json:"fromUserId"`
	FromName   string          `json:"fromName,omitempty"`
	FromConnID string          `json:"fromConnectionId"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

type MediaTogglePayload struct {
	RoomID  string `json:"roomId"`
	UserID  string `json:"userId"`
	Enabled bool   `json:"enabled"`
}

type ScreenSharePayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type RoomClosedPayload struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// VideoManager owns the multi-party consultation rooms layered on the Room
// Directory and relays WebRTC signaling between participants. The room
// status only moves forward: waiting -> active -> ended.
type VideoManager struct {
	mu    sync.Mutex
	rooms map[string]*videoRoom

	directory  *RoomDirectory
	emitter    Emitter
	purgeDelay time.Duration
	logger     *slog.Logger
}

func NewVideoManager(directory *RoomDirectory, emitter Emitter, purgeDelay time.Duration, logger *slog.Logger) *VideoManager {
	return &VideoManager{
		rooms:      make(map[string]*videoRoom),
		directory:  directory,
		emitter:    emitter,
		purgeDelay: purgeDelay,
		logger:     logger,
	}
}

// JoinRoom upserts the participant into the room, creating the room on
// first join, and returns the current roster. The waiting -> active
// transition is evaluated against the post-join membership, so two
// concurrent joins fire the consultation-started broadcast exactly once.
// Joining an ended room is rejected.
func (vm *VideoManager) JoinRoom(connID, roomID, userID string, role Role, displayName, consultationID string) ([]Participant, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	room, ok := vm.rooms[roomID]
	if !ok {
		room = &videoRoom{
			id:             roomID,
			consultationID: consultationID,
			status:         RoomWaiting,
			startTime:      time.Now(),
			participants:   make(map[string]*Participant),
		}
		vm.rooms[roomID] = room
	}
	if room.status == RoomEnded {
		vm.logger.Debug("join rejected, room ended", slog.String("room.id", roomID))
		return nil, false
	}

	p, ok := room.participants[userID]
	if !ok {
		p = &Participant{
			UserID:       userID,
			AudioEnabled: true,
			VideoEnabled: true,
			JoinedAt:     time.Now(),
		}
		room.participants[userID] = p
	}
	p.ConnID = connID
	p.Role = role
	p.DisplayName = displayName

	vm.directory.Join(roomID, userID)

	roster := room.roster()
	vm.broadcastExcept(room, userID, EventVideoUserJoined, VideoUserJoinedPayload{
		RoomID:      roomID,
		Participant: *p,
	})
	vm.emitter.ToConn(connID, EventVideoJoined, VideoJoinedPayload{
		RoomID:         roomID,
		ConsultationID: room.consultationID,
		Status:         room.status,
		Participants:   roster,
	})

	if !room.activated && room.hasRole(RoleDoctor) && room.hasRole(RolePatient) {
		room.activated = true
		room.status = RoomActive
		vm.logger.Info("consultation started", slog.String("room.id", roomID))
		vm.broadcast(room, EventVideoConsultationStarted, ConsultationStartedPayload{
			RoomID:       roomID,
			StartedAt:    time.Now(),
			Participants: roster,
		})
	}

	return roster, true
}

// LeaveRoom removes the participant and announces it. An empty room is
// purged immediately; the post-ended grace period only applies after an
// explicit end.
func (vm *VideoManager) LeaveRoom(roomID, userID string) {
	vm.leave(roomID, userID, EventVideoUserLeft)
}

// LeaveOnDisconnect removes the identity from every room holding the given
// connection, announcing an ungraceful departure, and returns the affected
// room ids.
func (vm *VideoManager) LeaveOnDisconnect(userID, connID string) []string {
	vm.mu.Lock()
	var roomIDs []string
	for roomID, room := range vm.rooms {
		if p, ok := room.participants[userID]; ok && p.ConnID == connID {
			roomIDs = append(roomIDs, roomID)
		}
	}
	vm.mu.Unlock()

	sort.Strings(roomIDs)
	for _, roomID := range roomIDs {
		vm.leave(roomID, userID, EventVideoUserDisconnected)
	}
	return roomIDs
}

func (vm *VideoManager) leave(roomID, userID, event string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	room, ok := vm.rooms[roomID]
	if !ok {
		return
	}
	p, ok := room.participants[userID]
	if !ok {
		return
	}
	delete(room.participants, userID)
	vm.directory.Leave(roomID, userID)

	if len(room.participants) == 0 {
		vm.dropRoom(room)
		return
	}
	vm.broadcast(room, event, VideoUserLeftPayload{
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: p.DisplayName,
	})
}

// RelayOffer forwards an SDP offer to the target participant, looked up by
// user id within the room. Unknown targets are dropped.
func (vm *VideoManager) RelayOffer(fromConnID, roomID, targetUserID string, offer json.RawMessage) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	room, ok := vm.writableRoom(roomID)
	if !ok {
		return
	}
	target, ok := room.participants[targetUserID]
	if !ok {
		vm.logger.Debug("offer dropped, target not in room",
			slog.String("room.id", roomID), slog.String("target", targetUserID))
		return
	}
	payload := vm.signalFrom(room, fromConnID, roomID)
	payload.Offer = offer
	vm.emitter.ToConn(target.ConnID, EventVideoOffer, payload)
}

// RelayAnswer forwards an SDP answer to a raw connection id. The answering
// side learned the offerer's connection id from the relayed offer.
func (vm *VideoManager) RelayAnswer(fromConnID, roomID, targetConnID string, answer json.RawMessage) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	room, ok := vm.writableRoom(roomID)
	if !ok {
		return
	}
	if !room.hasConn(targetConnID) {
		vm.logger.Debug("answer dropped, target not in room",
			slog.String("room.id", roomID), slog.String("target.conn", targetConnID))
		return
	}
	payload := vm.signalFrom(room, fromConnID, roomID)
	payload.Answer = answer
	vm.emitter.ToConn(targetConnID, EventVideoAnswer, payload)
}

// RelayICECandidate forwards an ICE candidate to a single connection, or to
// every other room member when no target is given (the target identity may
// not be negotiated yet).
func (vm *VideoManager) RelayICECandidate(fromConnID, roomID string, candidate json.RawMessage, targetConnID string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	room, ok := vm.writableRoom(roomID)
	if !ok {
		return
	}
	payload := vm.signalFrom(room, fromConnID, roomID)
	payload.Candidate = candidate

	if targetConnID != "" {
		if !room.hasConn(targetConnID) {
			vm.logger.Debug("candidate dropped, target not in room",
				slog.String("room.id", roomID), slog.String("target.conn", targetConnID))
			return
		}
		vm.emitter.ToConn(targetConnID, EventVideoICECandidate, payload)
		return
	}
	for _, p := range room.participants {
		if p.ConnID == fromConnID {
			continue
		}
		vm.emitter.ToConn(p.ConnID, EventVideoICECandidate, payload)
	}
}

// ToggleAudio flips the participant's audio flag and announces it to the
// rest of the room.
func (vm *VideoManager) ToggleAudio(roomID, userID string, enabled bool) {
	vm.toggleMedia(roomID, userID, enabled, EventVideoAudioToggled, func(p *Participant) {
		p.AudioEnabled = enabled
	})
}

// ToggleVideo flips the participant's video flag and announces it to the
// rest of the room.
func (vm *VideoManager) ToggleVideo(roomID, userID string, enabled bool) {
	vm.toggleMedia(roomID, userID, enabled, EventVideoVideoToggled, func(p *Participant) {
		p.VideoEnabled = enabled
	})
}

func (vm *VideoManager) toggleMedia(roomID, userID string, enabled bool, event string, apply func(*Participant)) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	room, ok := vm.writableRoom(roomID)
	if !ok {
		return
	}
	p, ok := room.participants[userID]
	if !ok {
		return
	}
	apply(p)
	vm.broadcastExcept(room, userID, event, MediaTogglePayload{
		RoomID:  roomID,
		UserID:  userID,
		Enabled: enabled,
	})
}

func (vm *VideoManager) StartScreenShare(roomID, userID string) {
	vm.setScreenShare(roomID, userID, true, EventVideoScreenShareStarted)
}

func (vm *VideoManager) StopScreenShare(roomID, userID string) {
	vm.setScreenShare(roomID, userID, false, EventVideoScreenShareStopped)
}

func (vm *VideoManager) setScreenShare(roomID, userID string, sharing bool, event string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	room, ok := vm.writableRoom(roomID)
	if !ok {
		return
	}
	p, ok := room.participants[userID]
	if !ok {
		return
	}
	p.IsScreenSharing = sharing
	vm.broadcastExcept(room, userID, event, ScreenSharePayload{
		RoomID: roomID,
		UserID: userID,
	})
}

// SendInRoomChat appends a message to the room's volatile transcript and
// broadcasts it to every member, the sender included.
func (vm *VideoManager) SendInRoomChat(roomID, senderID, body string) (RoomChatMessage, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	room, ok := vm.writableRoom(roomID)
	if !ok {
		return RoomChatMessage{}, false
	}
	msg := RoomChatMessage{
		ID:       uuid.NewString(),
		RoomID:   roomID,
		SenderID: senderID,
		Body:     body,
		SentAt:   time.Now(),
	}
	if p, ok := room.participants[senderID]; ok {
		msg.SenderName = p.DisplayName
	}
	room.messages = append(room.messages, msg)
	vm.broadcast(room, EventVideoChatMessage, msg)
	return msg, true
}

// EndConsultation moves the room to ended, announces the outcome with the
// computed duration, and schedules the purge. Ending an already ended or
// unknown room is a no-op.
func (vm *VideoManager) EndConsultation(roomID, userID, reason string) {
	vm.end(roomID, userID, reason)
}

// ForceEnd is the administrative variant bypassing the normal caller
// checks. It reports whether the room existed.
func (vm *VideoManager) ForceEnd(roomID, reason string) bool {
	return vm.end(roomID, "", reason)
}

func (vm *VideoManager) end(roomID, endedBy, reason string) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	room, ok := vm.rooms[roomID]
	if !ok {
		return false
	}
	if room.status == RoomEnded {
		return true
	}
	room.status = RoomEnded
	room.endTime = time.Now()
	duration := int(room.endTime.Sub(room.startTime) / time.Second)

	vm.logger.Info("consultation ended",
		slog.String("room.id", roomID), slog.Int("duration", duration),
		slog.String("reason", reason))

	vm.broadcast(room, EventVideoConsultationEnded, ConsultationEndedPayload{
		RoomID:   roomID,
		Duration: duration,
		Reason:   reason,
		EndedBy:  endedBy,
	})

	room.purge = time.AfterFunc(vm.purgeDelay, func() {
		vm.purgeEnded(roomID)
	})
	return true
}

// purgeEnded drops an ended room once its grace period elapses.
func (vm *VideoManager) purgeEnded(roomID string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	room, ok := vm.rooms[roomID]
	if !ok || room.status != RoomEnded {
		return
	}
	vm.broadcast(room, EventVideoRoomClosed, RoomClosedPayload{
		RoomID: roomID,
		Reason: "consultation ended",
	})
	for userID := range room.participants {
		vm.directory.Leave(roomID, userID)
	}
	vm.dropRoom(room)
}

// dropRoom removes the room and cancels any pending purge. Callers hold the
// manager lock.
func (vm *VideoManager) dropRoom(room *videoRoom) {
	if room.purge != nil {
		room.purge.Stop()
	}
	delete(vm.rooms, room.id)
	vm.logger.Debug("video room purged", slog.String("room.id", room.id))
}

// Room returns a read-only snapshot of the room. Ended rooms remain
// queryable until their purge timer fires.
func (vm *VideoManager) Room(roomID string) (VideoRoomSnapshot, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	room, ok := vm.rooms[roomID]
	if !ok {
		return VideoRoomSnapshot{}, false
	}
	messages := make([]RoomChatMessage, len(room.messages))
	copy(messages, room.messages)
	return VideoRoomSnapshot{
		RoomID:         room.id,
		ConsultationID: room.consultationID,
		Status:         room.status,
		StartTime:      room.startTime,
		EndTime:        room.endTime,
		Participants:   room.roster(),
		Messages:       messages,
	}, true
}

// RoomsWithUser returns the ids of every room the user participates in.
func (vm *VideoManager) RoomsWithUser(userID string) []string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	var out []string
	for roomID, room := range vm.rooms {
		if _, ok := room.participants[userID]; ok {
			out = append(out, roomID)
		}
	}
	sort.Strings(out)
	return out
}

// writableRoom returns the room unless it is unknown or ended; ended rooms
// reject new signaling and state changes.
func (vm *VideoManager) writableRoom(roomID string) (*videoRoom, bool) {
	room, ok := vm.rooms[roomID]
	if !ok || room.status == RoomEnded {
		return nil, false
	}
	return room, true
}

func (vm *VideoManager) signalFrom(room *videoRoom, fromConnID, roomID string) SignalPayload {
	payload := SignalPayload{RoomID: roomID, FromConnID: fromConnID}
	for _, p := range room.participants {
		if p.ConnID == fromConnID {
			payload.FromUserID = p.UserID
			payload.FromName = p.DisplayName
			break
		}
	}
	return payload
}

func (vm *VideoManager) broadcast(room *videoRoom, event string, payload interface{}) {
	for _, p := range room.participants {
		vm.emitter.ToConn(p.ConnID, event, payload)
	}
}

func (vm *VideoManager) broadcastExcept(room *videoRoom, exceptUserID, event string, payload interface{}) {
	for userID, p := range room.participants {
		if userID == exceptUserID {
			continue
		}
		vm.emitter.ToConn(p.ConnID, event, payload)
	}
}

func (r *videoRoom) roster() []Participant {
	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

func (r *videoRoom) hasRole(role Role) bool {
	for _, p := range r.participants {
		if p.Role == role {
			return true
		}
	}
	return false
}

func (r *videoRoom) hasConn(connID string) bool {
	for _, p := range r.participants {
		if p.ConnID == connID {
			return true
		}
	}
	return false
}
