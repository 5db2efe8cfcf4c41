package realtime

import "encoding/json"

// Inbound transport event names. The dispatcher is the only component that
// knows this naming convention; everything behind it is plain function
// calls.
const (
	UserRegisterEvent = "user:register"
	UserStatusEvent   = "user:status"

	ChatJoinEvent       = "chat:join"
	ChatLeaveEvent      = "chat:leave"
	ChatMessageEvent    = "chat:message"
	ChatTypingEvent     = "chat:typing"
	ChatStopTypingEvent = "chat:stopTyping"
	ChatReadEvent       = "chat:read"

	AdminSubscribeEvent = "admin:subscribe"

	AppointmentNotifyEvent = "appointment:notify"
	PaymentNotifyEvent     = "payment:notify"

	VideoJoinRoomEvent         = "video:joinRoom"
	VideoLeaveRoomEvent        = "video:leaveRoom"
	VideoOfferEvent            = "video:offer"
	VideoAnswerEvent           = "video:answer"
	VideoICECandidateEvent     = "video:iceCandidate"
	VideoToggleAudioEvent      = "video:toggleAudio"
	VideoToggleVideoEvent      = "video:toggleVideo"
	VideoStartScreenShareEvent = "video:startScreenShare"
	VideoStopScreenShareEvent  = "video:stopScreenShare"
	VideoChatMessageEvent      = "video:chatMessage"
	VideoEndConsultationEvent  = "video:endConsultation"
)

// Outbound names for the notification relays the dispatcher owns itself.
const (
	AppointmentNotificationEvent = "appointment:notification"
	PaymentNotificationEvent     = "payment:notification"
)

type UserRegisterPayload struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"required,role"`
	Name   string `json:"name"`
}

type UserStatusPayload struct {
	Status string `json:"status" validate:"required,oneof=online away offline"`
}

type ChatRoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

type ChatMessagePayload struct {
	RoomID     string `json:"roomId" validate:"required_without=ReceiverID"`
	ReceiverID string `json:"receiverId" validate:"required_without=RoomID"`
	Message    string `json:"message" validate:"required"`
}

type ChatTypingPayload struct {
	RoomID     string `json:"roomId" validate:"required_without=ReceiverID"`
	ReceiverID string `json:"receiverId" validate:"required_without=RoomID"`
}

type ChatReadPayload struct {
	MessageID string `json:"messageId" validate:"required"`
	SenderID  string `json:"senderId" validate:"required"`
}

type NotifyPayload struct {
	ReceiverID string          `json:"receiverId" validate:"required"`
	Data       json.RawMessage `json:"data"`
}

type VideoJoinRoomPayload struct {
	RoomID         string `json:"roomId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
	Role           string `json:"role" validate:"required,role"`
	UserName       string `json:"userName"`
	ConsultationID string `json:"consultationId"`
}

type VideoLeaveRoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type VideoOfferPayload struct {
	RoomID       string          `json:"roomId" validate:"required"`
	TargetUserID string          `json:"targetUserId" validate:"required"`
	Offer        json.RawMessage `json:"offer" validate:"required"`
}

type VideoAnswerPayload struct {
	RoomID       string          `json:"roomId" validate:"required"`
	TargetConnID string          `json:"targetConnectionId" validate:"required"`
	Answer       json.RawMessage `json:"answer" validate:"required"`
}

type VideoICECandidatePayload struct {
	RoomID       string          `json:"roomId" validate:"required"`
	TargetConnID string          `json:"targetConnectionId"`
	Candidate    json.RawMessage `json:"candidate" validate:"required"`
}

type VideoTogglePayload struct {
	RoomID  string `json:"roomId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
	Enabled bool   `json:"enabled"`
}

type VideoScreenSharePayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type VideoChatMessagePayload struct {
	RoomID  string `json:"roomId" validate:"required"`
	Message string `json:"message" validate:"required"`
}

type VideoEndConsultationPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
	Reason string `json:"reason"`
}
