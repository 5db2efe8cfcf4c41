package core

import (
	"sort"
	"strings"
	"sync"
)

// RoomDirectory maps a room id to the set of user ids currently joined,
// independent of what the room is used for. A room exists iff it has at
// least one member.
type RoomDirectory struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]struct{}
	byUser map[string]map[string]struct{}
}

func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{
		rooms:  make(map[string]map[string]struct{}),
		byUser: make(map[string]map[string]struct{}),
	}
}

// DirectRoomID derives the deterministic room id for a 1:1 conversation.
// Both participants compute the same id regardless of argument order.
func DirectRoomID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return strings.Join([]string{a, b}, "_")
}

// Join adds the user to the room, creating the room on first join. Joining
// twice is a no-op.
func (d *RoomDirectory) Join(roomID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		d.rooms[roomID] = members
	}
	members[userID] = struct{}{}

	roomsOf, ok := d.byUser[userID]
	if !ok {
		roomsOf = make(map[string]struct{})
		d.byUser[userID] = roomsOf
	}
	roomsOf[roomID] = struct{}{}
}

// Leave removes the user from the room. Leaving a room the user is not a
// member of is a no-op. The room is dropped the instant membership reaches
// zero.
func (d *RoomDirectory) Leave(roomID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leave(roomID, userID)
}

func (d *RoomDirectory) leave(roomID, userID string) {
	members, ok := d.rooms[roomID]
	if !ok {
		return
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(d.rooms, roomID)
	}
	if roomsOf, ok := d.byUser[userID]; ok {
		delete(roomsOf, roomID)
		if len(roomsOf) == 0 {
			delete(d.byUser, userID)
		}
	}
}

// LeaveAll removes the user from every room they joined and returns the ids
// of the rooms left.
func (d *RoomDirectory) LeaveAll(userID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	roomsOf, ok := d.byUser[userID]
	if !ok {
		return nil
	}
	left := make([]string, 0, len(roomsOf))
	for roomID := range roomsOf {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		d.leave(roomID, userID)
	}
	sort.Strings(left)
	return left
}

// Members returns the user ids currently joined to the room.
func (d *RoomDirectory) Members(roomID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(members))
	for userID := range members {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}

func (d *RoomDirectory) IsMember(roomID, userID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = members[userID]
	return ok
}

func (d *RoomDirectory) Exists(roomID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.rooms[roomID]
	return ok
}

// RoomsOf returns the ids of every room the user is a member of.
func (d *RoomDirectory) RoomsOf(userID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	roomsOf, ok := d.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(roomsOf))
	for roomID := range roomsOf {
		out = append(out, roomID)
	}
	sort.Strings(out)
	return out
}
