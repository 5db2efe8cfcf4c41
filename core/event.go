package core

// Outbound notification names. These form the core's notification contract;
// inbound event naming lives at the dispatcher boundary.
const (
	EventUserOnline       = "user:online"
	EventUserOffline      = "user:offline"
	EventUserStatusChange = "user:statusChange"

	EventChatNewMessage        = "chat:newMessage"
	EventChatUserJoined        = "chat:userJoined"
	EventChatUserLeft          = "chat:userLeft"
	EventChatUserTyping        = "chat:userTyping"
	EventChatUserStoppedTyping = "chat:userStoppedTyping"
	EventChatMessageRead       = "chat:messageRead"

	EventAdminDashboardData = "admin:dashboardData"

	EventVideoJoined              = "video:joined"
	EventVideoUserJoined          = "video:userJoined"
	EventVideoUserLeft            = "video:userLeft"
	EventVideoUserDisconnected    = "video:userDisconnected"
	EventVideoConsultationStarted = "video:consultationStarted"
	EventVideoConsultationEnded   = "video:consultationEnded"
	EventVideoOffer               = "video:offer"
	EventVideoAnswer              = "video:answer"
	EventVideoICECandidate        = "video:iceCandidate"
	EventVideoAudioToggled        = "video:audioToggled"
	EventVideoVideoToggled        = "video:videoToggled"
	EventVideoScreenShareStarted  = "video:screenShareStarted"
	EventVideoScreenShareStopped  = "video:screenShareStopped"
	EventVideoChatMessage         = "video:chatMessage"
	EventVideoRoomClosed          = "video:roomClosed"
)

// Emitter is the only surface the core uses to reach the transport layer.
// Delivery is fire and forget: emitting to an unknown connection or an
// offline user is a no-op.
type Emitter interface {
	// ToConn emits an event to a single connection by its ephemeral id.
	ToConn(connID string, event string, payload interface{})
	// ToUsers emits an event to the live connection of each given user.
	ToUsers(event string, payload interface{}, userIDs ...string)
	// All emits an event to every live connection.
	All(event string, payload interface{})
	// AllExcept emits an event to every live connection except the given one.
	AllExcept(exceptConnID string, event string, payload interface{})
}
