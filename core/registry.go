package core

import (
	"log/slog"
	"sync"
	"time"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

// Identity is a connected participant. UserID is stable across reconnects;
// ConnID is one per live transport connection.
type Identity struct {
	UserID      string    `json:"userId"`
	ConnID      string    `json:"connectionId"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"displayName"`
	Status      Status    `json:"status"`
	LastSeen    time.Time `json:"lastSeen"`
}

type identityEntry struct {
	Identity
	// removal is the pending grace-window removal, nil when none is
	// scheduled. Superseding the connection cancels it.
	removal *time.Timer
}

type OnlinePayload struct {
	UserID      string `json:"userId"`
	Role        Role   `json:"role"`
	DisplayName string `json:"displayName"`
	Status      Status `json:"status"`
}

type OfflinePayload struct {
	UserID   string    `json:"userId"`
	LastSeen time.Time `json:"lastSeen"`
}

type StatusChangePayload struct {
	UserID string `json:"userId"`
	Status Status `json:"status"`
}

// Registry maps user ids to their live connection and presence status. At
// most one connection per user id is considered online; a later Register for
// the same user id supersedes the earlier binding.
type Registry struct {
	mu     sync.RWMutex
	users  map[string]*identityEntry
	byConn map[string]string

	grace   time.Duration
	emitter Emitter
	logger  *slog.Logger

	// onRemoved fires after a grace window elapses without a reconnect and
	// the identity is dropped. Called outside the registry lock.
	onRemoved func(Identity)
}

func NewRegistry(emitter Emitter, grace time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		users:   make(map[string]*identityEntry),
		byConn:  make(map[string]string),
		grace:   grace,
		emitter: emitter,
		logger:  logger,
	}
}

func (r *Registry) OnRemoved(f func(Identity)) {
	r.onRemoved = f
}

// Register binds the connection to the identity, replacing any prior binding
// for the same user id, and announces the identity to all other connections.
func (r *Registry) Register(connID, userID string, role Role, displayName string) {
	r.mu.Lock()
	entry, ok := r.users[userID]
	if !ok {
		entry = &identityEntry{}
		r.users[userID] = entry
	}
	if entry.removal != nil {
		entry.removal.Stop()
		entry.removal = nil
	}
	if entry.ConnID != "" && entry.ConnID != connID {
		delete(r.byConn, entry.ConnID)
	}
	entry.Identity = Identity{
		UserID:      userID,
		ConnID:      connID,
		Role:        role,
		DisplayName: displayName,
		Status:      StatusOnline,
		LastSeen:    time.Now(),
	}
	r.byConn[connID] = userID
	r.mu.Unlock()

	r.logger.Info("user registered",
		slog.String("user.id", userID), slog.String("conn.id", connID),
		slog.String("role", string(role)))

	r.emitter.AllExcept(connID, EventUserOnline, OnlinePayload{
		UserID:      userID,
		Role:        role,
		DisplayName: displayName,
		Status:      StatusOnline,
	})
}

// UpdateStatus updates the presence status of a user and announces the
// change. Unknown user ids are a no-op.
func (r *Registry) UpdateStatus(userID string, status Status) {
	r.mu.Lock()
	entry, ok := r.users[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	entry.Status = status
	entry.LastSeen = time.Now()
	r.mu.Unlock()

	r.emitter.All(EventUserStatusChange, StatusChangePayload{
		UserID: userID,
		Status: status,
	})
}

func (r *Registry) Lookup(userID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.users[userID]
	if !ok {
		return Identity{}, false
	}
	return entry.Identity, true
}

// ConnIDOf returns the connection id currently bound to a user.
func (r *Registry) ConnIDOf(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.users[userID]
	if !ok || entry.Status == StatusOffline {
		return "", false
	}
	return entry.ConnID, true
}

// Online reports whether the user has a live connection.
func (r *Registry) Online(userID string) bool {
	_, ok := r.ConnIDOf(userID)
	return ok
}

// Disconnect is called once per transport-level disconnect. It marks the
// owning identity offline, announces it, and schedules removal after the
// grace window unless a new Register for the same user arrives first.
// Unknown or superseded connection ids are a no-op.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	userID, ok := r.byConn[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byConn, connID)
	entry, ok := r.users[userID]
	if !ok || entry.ConnID != connID {
		// a newer connection took over this identity
		r.mu.Unlock()
		return
	}
	entry.Status = StatusOffline
	entry.LastSeen = time.Now()
	lastSeen := entry.LastSeen
	if entry.removal != nil {
		entry.removal.Stop()
	}
	if r.grace <= 0 {
		delete(r.users, userID)
		identity := entry.Identity
		r.mu.Unlock()
		r.announceOffline(userID, lastSeen)
		if r.onRemoved != nil {
			r.onRemoved(identity)
		}
		return
	}
	entry.removal = time.AfterFunc(r.grace, func() {
		r.expire(userID, connID)
	})
	r.mu.Unlock()

	r.announceOffline(userID, lastSeen)
}

func (r *Registry) announceOffline(userID string, lastSeen time.Time) {
	r.logger.Info("user offline", slog.String("user.id", userID))
	r.emitter.All(EventUserOffline, OfflinePayload{
		UserID:   userID,
		LastSeen: lastSeen,
	})
}

// expire drops an identity whose grace window elapsed. A reconnect that
// re-bound the identity to a different connection makes the fired timer a
// no-op.
func (r *Registry) expire(userID, connID string) {
	r.mu.Lock()
	entry, ok := r.users[userID]
	if !ok || entry.ConnID != connID {
		r.mu.Unlock()
		return
	}
	delete(r.users, userID)
	identity := entry.Identity
	r.mu.Unlock()

	r.logger.Debug("identity expired", slog.String("user.id", userID))
	if r.onRemoved != nil {
		r.onRemoved(identity)
	}
}

// Counts is a point-in-time snapshot of online identities, used by the
// admin dashboard.
type Counts struct {
	Users    int `json:"onlineUsers"`
	Doctors  int `json:"onlineDoctors"`
	Patients int `json:"onlinePatients"`
}

func (r *Registry) Counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var c Counts
	for _, entry := range r.users {
		if entry.Status == StatusOffline {
			continue
		}
		c.Users++
		switch entry.Role {
		case RoleDoctor:
			c.Doctors++
		case RolePatient:
			c.Patients++
		}
	}
	return c
}
