package realtime

// Event names exchanged between clients and the gateway.
const (
	// client -> server
	EventHeartbeat    = "heartbeat"
	EventUserActivity = "user:activity"
	EventTokenRefresh = "token:refresh"
	EventLeaderClaim  = "leader:elected"

	// server -> client
	EventAuthSuccess           = "auth:success"
	EventAuthError             = "auth:error"
	EventTokenRefreshed        = "token:refreshed"
	EventTokenRotated          = "token:rotated"
	EventTokenRefreshError     = "token:refresh_error"
	EventLeaderElected         = "leader:elected"
	EventDeviceConnected       = "device:connected"
	EventSessionTimeoutWarning = "session:timeout_warning"
	EventSessionExpired        = "session:expired"
	EventSessionTerminated     = "session:terminated"
	EventHeartbeatResponse     = "heartbeat:response"
	EventPasswordChanged       = "auth:password_changed"
)

// Event is one message delivered to a connection. Payloads are plain structs;
// the transport layer owns serialization.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

// HeartbeatPayload is sent by each tab on its heartbeat interval.
type HeartbeatPayload struct {
	TabID     string `json:"tabId"`
	Timestamp int64  `json:"timestamp"`
	IsLeader  bool   `json:"isLeader"`
}

// ActivityPayload reports user activity from a tab.
type ActivityPayload struct {
	TabID     string `json:"tabId"`
	Timestamp int64  `json:"timestamp"`
}

// TokenRefreshPayload requests a refresh on behalf of the session.
type TokenRefreshPayload struct {
	TabID     string `json:"tabId"`
	Timestamp int64  `json:"timestamp"`
	IsLeader  bool   `json:"isLeader"`
}

// LeaderClaimPayload is a tab's claim to leadership of its device.
type LeaderClaimPayload struct {
	TabID        string `json:"tabId"`
	TabCreatedAt int64  `json:"tabCreatedAt"`
}

// AuthSuccessPayload acknowledges a successful handshake to one connection.
type AuthSuccessPayload struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// ErrorPayload carries a failure message to one connection.
type ErrorPayload struct {
	Message string `json:"message"`
}

// TokenRefreshedPayload carries new expiry info only, never raw token values.
type TokenRefreshedPayload struct {
	ExpiresIn int64 `json:"expiresIn"`
}

// TokenRotatedPayload hands the rotated pair to the tab that requested the
// refresh. Peer tabs only see token:refreshed; the raw values go to the
// requester alone, which keeps them in memory and rewrites its cookies on
// the next HTTP refresh.
type TokenRotatedPayload struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	AccessExpiresIn  int64  `json:"accessExpiresIn"`
	RefreshExpiresIn int64  `json:"refreshExpiresIn"`
}

// LeaderElectedPayload announces the elected tab to a device's connections.
type LeaderElectedPayload struct {
	TabID string `json:"tabId"`
}

// DeviceConnectedPayload tells the user's other devices a peer is live.
type DeviceConnectedPayload struct {
	DeviceID  string `json:"deviceId"`
	Timestamp int64  `json:"timestamp"`
}

// TimeoutWarningPayload warns a session room that idle expiry is near.
type TimeoutWarningPayload struct {
	SessionID string `json:"sessionId"`
	ExpiresIn int64  `json:"expiresIn"`
	Message   string `json:"message"`
}

// SessionTerminalPayload is the final event a session room receives before
// its connections are closed.
type SessionTerminalPayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

// HeartbeatResponsePayload echoes the server time to the heartbeating tab.
type HeartbeatResponsePayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PasswordChangedPayload tells every connection of a user that the password
// changed and re-authentication is required.
type PasswordChangedPayload struct {
	Timestamp int64 `json:"timestamp"`
}
