package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// SessionStatus is the lifecycle state of a session.
//
// Transitions: active -> idle_warned -> expired, and active|idle_warned -> ended.
// Both expired and ended are terminal; they differ only in reported reason.
type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionIdleWarned SessionStatus = "idle_warned"
	SessionExpired    SessionStatus = "expired"
	SessionEnded      SessionStatus = "ended"
)

// Terminal reports whether the status authorizes no further requests.
func (s SessionStatus) Terminal() bool {
	return s == SessionExpired || s == SessionEnded
}

// SessionMetadata carries per-tab coordination state and the termination reason.
type SessionMetadata struct {
	TabID             string `bson:"tab_id,omitempty"`
	IsLeader          bool   `bson:"is_leader,omitempty"`
	TerminationReason string `bson:"termination_reason,omitempty"`
}

// Session represents one authenticated login instance. One session may serve
// several tabs; each tab holds its own realtime connection into the session room.
type Session struct {
	ID           bson.ObjectID   `bson:"_id,omitempty"`
	UserID       string          `bson:"user_id"`
	DeviceID     string          `bson:"device_id"`
	Fingerprint  string          `bson:"fingerprint"`
	IPAddress    string          `bson:"ip_address"`
	UserAgent    string          `bson:"user_agent"`
	Status       SessionStatus   `bson:"status"`
	CSRFToken    string          `bson:"csrf_token"`
	LastActivity time.Time       `bson:"last_activity"`
	ExpiresAt    time.Time       `bson:"expires_at"`
	Metadata     SessionMetadata `bson:"metadata"`
	CreatedAt    time.Time       `bson:"created_at"`
	UpdatedAt    time.Time       `bson:"updated_at"`
}

// UserRoom returns the realtime room shared by all of the user's connections.
func (s *Session) UserRoom() string {
	return "user:" + s.UserID
}

// DeviceRoom returns the realtime room shared by connections from the same device.
func (s *Session) DeviceRoom() string {
	return "device:" + s.Fingerprint
}

// Room returns the realtime room scoped to this session.
func (s *Session) Room() string {
	return "session:" + s.ID.Hex()
}
