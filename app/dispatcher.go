package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/carebridge/realtime/core"
	"github.com/carebridge/realtime/ws"
)

// Dispatcher demultiplexes inbound transport events onto the coordination
// core. It runs on the hub's single dispatch goroutine, so handlers observe
// registry and room mutations in one serialized order and per-room delivery
// preserves invocation order.
type Dispatcher struct {
	registry *core.Registry
	relay    *core.Relay
	video    *core.VideoManager
	emitter  core.Emitter
	validate *validator.Validate
	logger   *slog.Logger
}

func NewDispatcher(registry *core.Registry, relay *core.Relay, video *core.VideoManager,
	emitter core.Emitter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		relay:    relay,
		video:    video,
		emitter:  emitter,
		validate: validate,
		logger:   logger,
	}
}

// Bind hooks the dispatcher onto the hub's packet and disconnect callbacks.
func (d *Dispatcher) Bind(hub ws.Hub) {
	hub.OnPacket(d.Dispatch)
	hub.OnDisconnect(func(conn ws.Conn) {
		d.HandleDisconnect(conn.ID(), conn.Claims())
	})
}

// Dispatch routes a single inbound packet. Malformed payloads are rejected
// here and never reach the core.
func (d *Dispatcher) Dispatch(p *ws.InPacket) {
	switch p.Type {
	case UserRegisterEvent:
		d.handleRegister(p)
	case UserStatusEvent:
		d.handleStatus(p)
	case ChatJoinEvent:
		d.handleChatJoin(p)
	case ChatLeaveEvent:
		d.handleChatLeave(p)
	case ChatMessageEvent:
		d.handleChatMessage(p)
	case ChatTypingEvent:
		d.handleChatTyping(p)
	case ChatStopTypingEvent:
		d.handleChatStopTyping(p)
	case ChatReadEvent:
		d.handleChatRead(p)
	case AdminSubscribeEvent:
		d.handleAdminSubscribe(p)
	case AppointmentNotifyEvent:
		d.handleNotify(p, AppointmentNotificationEvent)
	case PaymentNotifyEvent:
		d.handleNotify(p, PaymentNotificationEvent)
	case VideoJoinRoomEvent:
		d.handleVideoJoin(p)
	case VideoLeaveRoomEvent:
		d.handleVideoLeave(p)
	case VideoOfferEvent:
		d.handleVideoOffer(p)
	case VideoAnswerEvent:
		d.handleVideoAnswer(p)
	case VideoICECandidateEvent:
		d.handleVideoICECandidate(p)
	case VideoToggleAudioEvent:
		d.handleVideoToggle(p, d.video.ToggleAudio)
	case VideoToggleVideoEvent:
		d.handleVideoToggle(p, d.video.ToggleVideo)
	case VideoStartScreenShareEvent:
		d.handleScreenShare(p, d.video.StartScreenShare)
	case VideoStopScreenShareEvent:
		d.handleScreenShare(p, d.video.StopScreenShare)
	case VideoChatMessageEvent:
		d.handleVideoChatMessage(p)
	case VideoEndConsultationEvent:
		d.handleVideoEnd(p)
	default:
		d.logger.Debug("unknown event", slog.String("event", p.Type))
	}
}

// HandleDisconnect reconciles a transport-level disconnect: the registry
// schedules the grace-window removal, and every video room holding the
// connection sees an ungraceful departure.
func (d *Dispatcher) HandleDisconnect(connID string, claims ws.Claims) {
	d.registry.Disconnect(connID)
	d.video.LeaveOnDisconnect(claims.UserID, connID)
	d.relay.BroadcastDashboard()
}

func (d *Dispatcher) handleRegister(p *ws.InPacket) {
	var payload UserRegisterPayload
	if !d.decode(p, &payload) {
		return
	}
	// the transport-level claims are the authenticated identity; a
	// registration for someone else's identity is dropped
	if p.Claims.UserID != "" && p.Claims.UserID != payload.UserID {
		d.logger.Warn("register rejected, identity mismatch",
			slog.String("claims.user", p.Claims.UserID),
			slog.String("payload.user", payload.UserID))
		return
	}
	name := payload.Name
	if name == "" {
		name = p.Claims.DisplayName
	}
	d.registry.Register(p.ConnID, payload.UserID, core.Role(payload.Role), name)
	d.relay.BroadcastDashboard()
}

func (d *Dispatcher) handleStatus(p *ws.InPacket) {
	var payload UserStatusPayload
	if !d.decode(p, &payload) {
		return
	}
	d.registry.UpdateStatus(p.Claims.UserID, core.Status(payload.Status))
}

func (d *Dispatcher) handleChatJoin(p *ws.InPacket) {
	var payload ChatRoomPayload
	if !d.decode(p, &payload) {
		return
	}
	d.relay.JoinRoom(payload.RoomID, p.Claims.UserID)
}

func (d *Dispatcher) handleChatLeave(p *ws.InPacket) {
	var payload ChatRoomPayload
	if !d.decode(p, &payload) {
		return
	}
	d.relay.LeaveRoom(payload.RoomID, p.Claims.UserID)
}

func (d *Dispatcher) handleChatMessage(p *ws.InPacket) {
	var payload ChatMessagePayload
	if !d.decode(p, &payload) {
		return
	}
	d.relay.SendMessage(p.Claims.UserID, payload.RoomID, payload.ReceiverID, payload.Message)
}

func (d *Dispatcher) handleChatTyping(p *ws.InPacket) {
	var payload ChatTypingPayload
	if !d.decode(p, &payload) {
		return
	}
	d.relay.StartTyping(payload.RoomID, payload.ReceiverID, p.Claims.UserID, p.Claims.DisplayName)
}

func (d *Dispatcher) handleChatStopTyping(p *ws.InPacket) {
	var payload ChatTypingPayload
	if !d.decode(p, &payload) {
		return
	}
	d.relay.StopTyping(payload.RoomID, payload.ReceiverID, p.Claims.UserID)
}

func (d *Dispatcher) handleChatRead(p *ws.InPacket) {
	var payload ChatReadPayload
	if !d.decode(p, &payload) {
		return
	}
	d.relay.MarkRead(payload.MessageID, payload.SenderID, p.Claims.UserID)
}

func (d *Dispatcher) handleAdminSubscribe(p *ws.InPacket) {
	if p.Claims.Role != string(core.RoleAdmin) {
		d.logger.Warn("dashboard subscribe rejected",
			slog.String("user.id", p.Claims.UserID), slog.String("role", p.Claims.Role))
		return
	}
	d.relay.SubscribeAdminDashboard(p.ConnID, p.Claims.UserID)
}

// handleNotify relays an appointment or payment notification produced by
// the CRUD side of the platform to the receiver's live connection.
func (d *Dispatcher) handleNotify(p *ws.InPacket, outEvent string) {
	var payload NotifyPayload
	if !d.decode(p, &payload) {
		return
	}
	d.emitter.ToUsers(outEvent, payload.Data, payload.ReceiverID)
}

func (d *Dispatcher) handleVideoJoin(p *ws.InPacket) {
	var payload VideoJoinRoomPayload
	if !d.decode(p, &payload) {
		return
	}
	if p.Claims.UserID != "" && p.Claims.UserID != payload.UserID {
		d.logger.Warn("video join rejected, identity mismatch",
			slog.String("claims.user", p.Claims.UserID),
			slog.String("payload.user", payload.UserID))
		return
	}
	name := payload.UserName
	if name == "" {
		name = p.Claims.DisplayName
	}
	d.video.JoinRoom(p.ConnID, payload.RoomID, payload.UserID,
		core.Role(payload.Role), name, payload.ConsultationID)
}

func (d *Dispatcher) handleVideoLeave(p *ws.InPacket) {
	var payload VideoLeaveRoomPayload
	if !d.decode(p, &payload) {
		return
	}
	d.video.LeaveRoom(payload.RoomID, payload.UserID)
}

func (d *Dispatcher) handleVideoOffer(p *ws.InPacket) {
	var payload VideoOfferPayload
	if !d.decode(p, &payload) {
		return
	}
	d.video.RelayOffer(p.ConnID, payload.RoomID, payload.TargetUserID, payload.Offer)
}

func (d *Dispatcher) handleVideoAnswer(p *ws.InPacket) {
	var payload VideoAnswerPayload
	if !d.decode(p, &payload) {
		return
	}
	d.video.RelayAnswer(p.ConnID, payload.RoomID, payload.TargetConnID, payload.Answer)
}

func (d *Dispatcher) handleVideoICECandidate(p *ws.InPacket) {
	var payload VideoICECandidatePayload
	if !d.decode(p, &payload) {
		return
	}
	d.video.RelayICECandidate(p.ConnID, payload.RoomID, payload.Candidate, payload.TargetConnID)
}

func (d *Dispatcher) handleVideoToggle(p *ws.InPacket, toggle func(roomID, userID string, enabled bool)) {
	var payload VideoTogglePayload
	if !d.decode(p, &payload) {
		return
	}
	toggle(payload.RoomID, payload.UserID, payload.Enabled)
}

func (d *Dispatcher) handleScreenShare(p *ws.InPacket, set func(roomID, userID string)) {
	var payload VideoScreenSharePayload
	if !d.decode(p, &payload) {
		return
	}
	set(payload.RoomID, payload.UserID)
}

func (d *Dispatcher) handleVideoChatMessage(p *ws.InPacket) {
	var payload VideoChatMessagePayload
	if !d.decode(p, &payload) {
		return
	}
	d.video.SendInRoomChat(payload.RoomID, p.Claims.UserID, payload.Message)
}

func (d *Dispatcher) handleVideoEnd(p *ws.InPacket) {
	var payload VideoEndConsultationPayload
	if !d.decode(p, &payload) {
		return
	}
	if p.Claims.Role == string(core.RoleAdmin) && p.Claims.UserID != payload.UserID {
		d.video.ForceEnd(payload.RoomID, payload.Reason)
		return
	}
	d.video.EndConsultation(payload.RoomID, payload.UserID, payload.Reason)
}

func (d *Dispatcher) decode(p *ws.InPacket, v interface{}) bool {
	if err := json.Unmarshal(p.Payload, v); err != nil {
		d.logger.Warn(fmt.Sprintf("%s: malformed payload: %v", p.Type, err))
		return false
	}
	if err := d.validate.Struct(v); err != nil {
		d.logger.Warn(fmt.Sprintf("%s: invalid payload: %v", p.Type, err))
		return false
	}
	return true
}
