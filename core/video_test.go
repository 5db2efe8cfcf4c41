package core

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVideo(t *testing.T, purgeDelay time.Duration) (*VideoManager, *RoomDirectory, *recordingEmitter) {
	t.Helper()
	emitter := newRecordingEmitter()
	rooms := NewRoomDirectory()
	vm := NewVideoManager(rooms, emitter, purgeDelay, testLogger())
	return vm, rooms, emitter
}

func TestVideoJoinRoom(t *testing.T) {
	t.Parallel()

	t.Run("first join creates a waiting room and returns the roster", func(t *testing.T) {
		vm, rooms, emitter := newTestVideo(t, time.Minute)

		roster, ok := vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "consult-9")
		require.True(t, ok)
		require.Len(t, roster, 1)
		assert.Equal(t, "p1", roster[0].UserID)
		assert.True(t, roster[0].AudioEnabled)
		assert.True(t, roster[0].VideoEnabled)

		snapshot, ok := vm.Room("apt-42")
		require.True(t, ok)
		assert.Equal(t, RoomWaiting, snapshot.Status)
		assert.Equal(t, "consult-9", snapshot.ConsultationID)
		assert.True(t, rooms.IsMember("apt-42", "p1"))

		joined := emitter.ofType(EventVideoJoined)
		require.Len(t, joined, 1)
		assert.Equal(t, "c1", joined[0].ConnID)
		assert.Zero(t, emitter.count(EventVideoConsultationStarted))
	})

	t.Run("doctor and patient present together activates the room", func(t *testing.T) {
		vm, _, emitter := newTestVideo(t, time.Minute)

		vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")
		vm.JoinRoom("c2", "apt-42", "d1", RoleDoctor, "Dr. Grey", "")

		snapshot, _ := vm.Room("apt-42")
		assert.Equal(t, RoomActive, snapshot.Status)

		started := emitter.ofType(EventVideoConsultationStarted)
		// both participants receive the broadcast
		require.Len(t, started, 2)
		assert.ElementsMatch(t, []string{"c1", "c2"}, emitter.connsOf(EventVideoConsultationStarted))
		payload := started[0].Payload.(ConsultationStartedPayload)
		require.Len(t, payload.Participants, 2)
	})

	t.Run("a departed party rejoining never re-fires the started broadcast", func(t *testing.T) {
		vm, _, emitter := newTestVideo(t, time.Minute)

		vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")
		vm.JoinRoom("c2", "apt-42", "d1", RoleDoctor, "Dr. Grey", "")
		vm.LeaveRoom("apt-42", "d1")
		vm.JoinRoom("c3", "apt-42", "d1", RoleDoctor, "Dr. Grey", "")

		assert.Equal(t, 2, emitter.count(EventVideoConsultationStarted))
		snapshot, _ := vm.Room("apt-42")
		assert.Equal(t, RoomActive, snapshot.Status, "status never downgrades to waiting")
	})

	t.Run("rejoining is an idempotent upsert", func(t *testing.T) {
		vm, _, _ := newTestVideo(t, time.Minute)

		vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")
		roster, ok := vm.JoinRoom("c9", "apt-42", "p1", RolePatient, "Pat", "")
		require.True(t, ok)
		require.Len(t, roster, 1)
		assert.Equal(t, "c9", roster[0].ConnID)
	})

	t.Run("two simultaneous joins fire the started broadcast exactly once", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			vm, _, emitter := newTestVideo(t, time.Minute)

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")
			}()
			go func() {
				defer wg.Done()
				vm.JoinRoom("c2", "apt-42", "d1", RoleDoctor, "Dr. Grey", "")
			}()
			wg.Wait()

			started := emitter.ofType(EventVideoConsultationStarted)
			assert.Len(t, started, 2, "one broadcast delivered to two participants")
		}
	})
}

func TestVideoLeaveRoom(t *testing.T) {
	t.Parallel()

	t.Run("leave announces to the remaining members", func(t *testing.T) {
		vm, _, emitter := newTestVideo(t, time.Minute)
		vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")
		vm.JoinRoom("c2", "apt-42", "d1", RoleDoctor, "Dr. Grey", "")
		emitter.reset()

		vm.LeaveRoom("apt-42", "p1")

		left := emitter.ofType(EventVideoUserLeft)
		require.Len(t, left, 1)
		assert.Equal(t, "c2", left[0].ConnID)
		payload := left[0].Payload.(VideoUserLeftPayload)
		assert.Equal(t, "p1", payload.UserID)
	})

	t.Run("an abandoned room is purged immediately", func(t *testing.T) {
		vm, rooms, _ := newTestVideo(t, time.Minute)
		vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")

		vm.LeaveRoom("apt-42", "p1")

		_, ok := vm.Room("apt-42")
		assert.False(t, ok)
		assert.False(t, rooms.Exists("apt-42"))
	})

	t.Run("leaving an unknown room or as a non-member is a no-op", func(t *testing.T) {
		vm, _, emitter := newTestVideo(t, time.Minute)
		vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")
		emitter.reset()

		vm.LeaveRoom("nope", "p1")
		vm.LeaveRoom("apt-42", "ghost")
		assert.Empty(t, emitter.all())
	})
}

func TestVideoLeaveOnDisconnect(t *testing.T) {
	t.Parallel()

	t.Run("removes the identity from every room holding the connection", func(t *testing.T) {
		vm, _, emitter := newTestVideo(t, time.Minute)
		vm.JoinRoom("c1", "apt-1", "p1", RolePatient, "Pat", "")
		vm.JoinRoom("c1", "apt-2", "p1", RolePatient, "Pat", "")
		vm.JoinRoom("c2", "apt-2", "d1", RoleDoctor, "Dr. Grey", "")
		emitter.reset()

		affected := vm.LeaveOnDisconnect("p1", "c1")
		assert.Equal(t, []string{"apt-1", "apt-2"}, affected)
		assert.Equal(t, 1, emitter.count(EventVideoUserDisconnected))
		assert.Empty(t, vm.RoomsWithUser("p1"))
	})

	t.Run("a stale connection id does not evict a rejoined participant", func(t *testing.T) {
		vm, _, _ := newTestVideo(t, time.Minute)
		vm.JoinRoom("c1", "apt-1", "p1", RolePatient, "Pat", "")
		vm.JoinRoom("c2", "apt-1", "p1", RolePatient, "Pat", "")

		affected := vm.LeaveOnDisconnect("p1", "c1")
		assert.Empty(t, affected)
		assert.Equal(t, []string{"apt-1"}, vm.RoomsWithUser("p1"))
	})
}

func TestVideoSignaling(t *testing.T) {
	t.Parallel()

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	candidate := json.RawMessage(`{"candidate":"foo"}`)

	setup := func(t *testing.T) (*VideoManager, *recordingEmitter) {
		vm, _, emitter := newTestVideo(t, time.Minute)
		vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")
		vm.JoinRoom("c2", "apt-42", "d1", RoleDoctor, "Dr. Grey", "")
		vm.JoinRoom("c3", "apt-42", "d2", RoleDoctor, "Dr. Yang", "")
		emitter.reset()
		return vm, emitter
	}

	t.Run("offers are forwarded to the target user annotated with the sender", func(t *testing.T) {
		vm, emitter := setup(t)

		vm.RelayOffer("c1", "apt-42", "d1", offer)

		offers := emitter.ofType(EventVideoOffer)
		require.Len(t, offers, 1)
		assert.Equal(t, "c2", offers[0].ConnID)
		payload := offers[0].Payload.(SignalPayload)
		assert.Equal(t, "p1", payload.FromUserID)
		assert.Equal(t, "c1", payload.FromConnID)
		assert.Equal(t, offer, payload.Offer)
	})

	t.Run("answers target a raw connection id", func(t *testing.T) {
		vm, emitter := setup(t)

		vm.RelayAnswer("c2", "apt-42", "c1", answer)

		answers := emitter.ofType(EventVideoAnswer)
		require.Len(t, answers, 1)
		assert.Equal(t, "c1", answers[0].ConnID)
	})

	t.Run("candidates without a target fan out to every other member", func(t *testing.T) {
		vm, emitter := setup(t)

		vm.RelayICECandidate("c1", "apt-42", candidate, "")

		assert.ElementsMatch(t, []string{"c2", "c3"}, emitter.connsOf(EventVideoICECandidate))
	})

	t.Run("relays to a target not in the room are silently dropped", func(t *testing.T) {
		vm, emitter := setup(t)

		vm.RelayOffer("c1", "apt-42", "ghost", offer)
		vm.RelayAnswer("c1", "apt-42", "c9", answer)
		vm.RelayICECandidate("c1", "apt-42", candidate, "c9")
		vm.RelayOffer("c1", "no-room", "d1", offer)
		assert.Empty(t, emitter.all())
	})
}

func TestVideoMediaState(t *testing.T) {
	t.Parallel()

	t.Run("toggling audio round-trips and produces two broadcasts", func(t *testing.T) {
		vm, _, emitter := newTestVideo(t, time.Minute)
		vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")
		vm.JoinRoom("c2", "apt-42", "d1", RoleDoctor, "Dr. Grey", "")
		emitter.reset()

		vm.ToggleAudio("apt-42", "p1", false)
		snapshot, _ := vm.Room("apt-42")
		assert.False(t, participantOf(t, snapshot, "p1").AudioEnabled)

		vm.ToggleAudio("apt-42", "p1", true)
		snapshot, _ = vm.Room("apt-42")
		assert.True(t, participantOf(t, snapshot, "p1").AudioEnabled)

		toggles := emitter.ofType(EventVideoAudioToggled)
		require.Len(t, toggles, 2)
		assert.Equal(t, "c2", toggles[0].ConnID, "the toggling participant is not notified")
	})

	t.Run("screen share state is tracked and announced", func(t *testing.T) {
		vm, _, emitter := newTestVideo(t, time.Minute)
		vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")
		vm.JoinRoom("c2", "apt-42", "d1", RoleDoctor, "Dr. Grey", "")
		emitter.reset()

		vm.StartScreenShare("apt-42", "d1")
		snapshot, _ := vm.Room("apt-42")
		assert.True(t, participantOf(t, snapshot, "d1").IsScreenSharing)
		assert.Equal(t, 1, emitter.count(EventVideoScreenShareStarted))

		vm.StopScreenShare("apt-42", "d1")
		snapshot, _ = vm.Room("apt-42")
		assert.False(t, participantOf(t, snapshot, "d1").IsScreenSharing)
		assert.Equal(t, 1, emitter.count(EventVideoScreenShareStopped))
	})

	t.Run("toggles for unknown rooms or participants are no-ops", func(t *testing.T) {
		vm, _, emitter := newTestVideo(t, time.Minute)
		vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")
		emitter.reset()

		vm.ToggleVideo("nope", "p1", false)
		vm.ToggleVideo("apt-42", "ghost", false)
		assert.Empty(t, emitter.all())
	})
}

func TestVideoInRoomChat(t *testing.T) {
	t.Parallel()

	vm, _, emitter := newTestVideo(t, time.Minute)
	vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")
	vm.JoinRoom("c2", "apt-42", "d1", RoleDoctor, "Dr. Grey", "")
	emitter.reset()

	msg, ok := vm.SendInRoomChat("apt-42", "p1", "does this hurt?")
	require.True(t, ok)
	assert.Equal(t, "Pat", msg.SenderName)

	// broadcast to every member, sender included
	assert.ElementsMatch(t, []string{"c1", "c2"}, emitter.connsOf(EventVideoChatMessage))

	snapshot, _ := vm.Room("apt-42")
	require.Len(t, snapshot.Messages, 1)
	assert.Equal(t, msg.ID, snapshot.Messages[0].ID)
}

func TestVideoEndConsultation(t *testing.T) {
	t.Parallel()

	t.Run("ending broadcasts the outcome and purges after the grace period", func(t *testing.T) {
		vm, rooms, emitter := newTestVideo(t, 30*time.Millisecond)
		vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")
		vm.JoinRoom("c2", "apt-42", "d1", RoleDoctor, "Dr. Grey", "")
		emitter.reset()

		vm.EndConsultation("apt-42", "d1", "completed")

		snapshot, ok := vm.Room("apt-42")
		require.True(t, ok, "ended room stays queryable during the grace period")
		assert.Equal(t, RoomEnded, snapshot.Status)

		ended := emitter.ofType(EventVideoConsultationEnded)
		require.Len(t, ended, 2)
		payload := ended[0].Payload.(ConsultationEndedPayload)
		assert.Equal(t, "completed", payload.Reason)
		assert.Equal(t, "d1", payload.EndedBy)
		assert.Equal(t, int(snapshot.EndTime.Sub(snapshot.StartTime)/time.Second), payload.Duration)

		assert.Eventually(t, func() bool {
			_, ok := vm.Room("apt-42")
			return !ok && !rooms.Exists("apt-42")
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, 2, emitter.count(EventVideoRoomClosed))
	})

	t.Run("an ended room rejects joins and signaling", func(t *testing.T) {
		vm, _, emitter := newTestVideo(t, time.Minute)
		vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")
		vm.EndConsultation("apt-42", "p1", "cancelled")
		emitter.reset()

		_, ok := vm.JoinRoom("c2", "apt-42", "d1", RoleDoctor, "Dr. Grey", "")
		assert.False(t, ok)
		vm.RelayOffer("c1", "apt-42", "p1", json.RawMessage(`{}`))
		vm.ToggleAudio("apt-42", "p1", false)
		assert.Empty(t, emitter.all())
	})

	t.Run("ending twice is a no-op", func(t *testing.T) {
		vm, _, emitter := newTestVideo(t, time.Minute)
		vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")

		vm.EndConsultation("apt-42", "p1", "completed")
		vm.EndConsultation("apt-42", "p1", "completed")
		assert.Equal(t, 1, emitter.count(EventVideoConsultationEnded))
	})

	t.Run("force end reports whether the room existed", func(t *testing.T) {
		vm, _, _ := newTestVideo(t, time.Minute)
		vm.JoinRoom("c1", "apt-42", "p1", RolePatient, "Pat", "")

		assert.True(t, vm.ForceEnd("apt-42", "admin closed"))
		assert.False(t, vm.ForceEnd("nope", "admin closed"))
	})
}

func participantOf(t *testing.T, snapshot VideoRoomSnapshot, userID string) Participant {
	t.Helper()
	for _, p := range snapshot.Participants {
		if p.UserID == userID {
			return p
		}
	}
	t.Fatalf("participant %s not in room %s", userID, snapshot.RoomID)
	return Participant{}
}
