package realtime

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/config"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/model"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/usecase"
)

var (
	ErrMissingToken = errors.New("missing access token")
)

// Gateway drives the realtime protocol on top of the room registry: it
// authenticates new connections, dispatches client events and pushes
// server-initiated session events. It is transport-agnostic; the websocket
// layer feeds it decoded events.
type Gateway struct {
	rooms    RoomRegistry
	auth     usecase.AuthUsecase
	sessions usecase.SessionUsecase
	devices  usecase.DeviceUsecase
	leader   LeaderStrategy
	board    *leaderBoard
	cfg      config.RealtimeConfig
	logger   *zerolog.Logger
}

func NewGateway(
	rooms RoomRegistry,
	auth usecase.AuthUsecase,
	sessions usecase.SessionUsecase,
	devices usecase.DeviceUsecase,
	cfg config.RealtimeConfig,
	logger *zerolog.Logger,
) *Gateway {
	return &Gateway{
		rooms:    rooms,
		auth:     auth,
		sessions: sessions,
		devices:  devices,
		leader:   OldestTabStrategy{},
		board:    newLeaderBoard(),
		cfg:      cfg,
		logger:   logger,
	}
}

// SetLeaderStrategy overrides the default election policy.
func (g *Gateway) SetLeaderStrategy(strategy LeaderStrategy) {
	if strategy != nil {
		g.leader = strategy
	}
}

// HandshakeParams carries the credentials a connection presents on connect.
type HandshakeParams struct {
	AccessToken string
	CSRFToken   string
	DeviceID    string
	TabID       string
}

// Connect authenticates a new connection and joins it to its rooms. The
// checks run in a fixed order so a client always sees the most specific
// failure first, and the whole handshake is bounded by the configured
// timeout. On success the connection receives auth:success; on failure it
// receives auth:error and is disconnected.
func (g *Gateway) Connect(ctx context.Context, client *Client, params HandshakeParams) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.HandshakeTimeout)
	defer cancel()

	g.rooms.Register(client)

	session, err := g.authenticate(ctx, client, params)
	if err != nil {
		g.logger.Warn().Err(err).Str("conn_id", client.ID).Msg("realtime handshake rejected")
		g.rooms.EmitTo(client.ID, Event{Name: EventAuthError, Payload: ErrorPayload{Message: err.Error()}})
		g.rooms.Disconnect(client.ID)
		return err
	}

	g.rooms.Join(client.ID, session.UserRoom())
	g.rooms.Join(client.ID, session.DeviceRoom())
	g.rooms.Join(client.ID, session.Room())
	if client.TabID != "" {
		g.rooms.Join(client.ID, "tab:"+client.TabID)
	}

	// Acknowledge to this connection only; existing tabs are not disturbed.
	g.rooms.EmitTo(client.ID, Event{Name: EventAuthSuccess, Payload: AuthSuccessPayload{
		UserID:    client.UserID,
		SessionID: client.SessionID,
	}})

	g.logger.Info().
		Str("conn_id", client.ID).
		Str("user_id", client.UserID).
		Str("session_id", client.SessionID).
		Str("tab_id", client.TabID).
		Msg("realtime connection established")
	return nil
}

func (g *Gateway) authenticate(ctx context.Context, client *Client, params HandshakeParams) (*model.Session, error) {
	if params.AccessToken == "" {
		return nil, ErrMissingToken
	}

	user, claims, err := g.auth.GetUserFromToken(ctx, params.AccessToken)
	if err != nil {
		return nil, err
	}

	session, err := g.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil, usecase.ErrSessionExpired
	}

	if params.CSRFToken != "" &&
		subtle.ConstantTimeCompare([]byte(params.CSRFToken), []byte(session.CSRFToken)) != 1 {
		return nil, usecase.ErrCSRFMismatch
	}

	deviceID := params.DeviceID
	if deviceID == "" {
		deviceID = claims.DeviceID
	}
	device, err := g.devices.GetDevice(ctx, deviceID)
	if err != nil || device.UserID != user.ID.Hex() {
		return nil, usecase.ErrDeviceMismatch
	}

	client.UserID = user.ID.Hex()
	client.SessionID = claims.SessionID
	client.DeviceID = deviceID
	client.Fingerprint = device.Fingerprint
	client.TabID = params.TabID
	return session, nil
}

// Disconnect tears down a connection. The device's leadership is vacated
// only when the departing tab is the current leader; remaining tabs then
// re-elect on their next claim.
func (g *Gateway) Disconnect(client *Client) {
	if client.Fingerprint != "" && client.TabID != "" {
		g.board.forgetIf("device:"+client.Fingerprint, client.TabID)
	}
	g.rooms.Disconnect(client.ID)
}

// HandleHeartbeat records tab liveness against the session and echoes the
// server time so the tab can detect clock skew.
func (g *Gateway) HandleHeartbeat(ctx context.Context, client *Client, payload HeartbeatPayload) {
	meta := &model.SessionMetadata{TabID: payload.TabID, IsLeader: payload.IsLeader}
	if err := g.sessions.UpdateSessionActivity(ctx, client.SessionID, "heartbeat", meta); err != nil {
		g.logger.Debug().Err(err).Str("session_id", client.SessionID).Msg("heartbeat activity update skipped")
	}

	g.rooms.EmitTo(client.ID, Event{Name: EventHeartbeatResponse, Payload: HeartbeatResponsePayload{
		Timestamp: time.Now().UnixMilli(),
	}})
	g.rooms.Emit("user:"+client.UserID, Event{Name: EventDeviceConnected, Payload: DeviceConnectedPayload{
		DeviceID:  client.DeviceID,
		Timestamp: time.Now().UnixMilli(),
	}})
}

// HandleActivity records user activity from a tab.
func (g *Gateway) HandleActivity(ctx context.Context, client *Client, payload ActivityPayload) {
	meta := &model.SessionMetadata{TabID: payload.TabID}
	if err := g.sessions.UpdateSessionActivity(ctx, client.SessionID, "user_activity", meta); err != nil {
		g.logger.Debug().Err(err).Str("session_id", client.SessionID).Msg("activity update skipped")
	}
}

// HandleTokenRefresh rotates the session's refresh token on behalf of the
// requesting tab. The old token comes from the connection's cookies or a
// previous rotation on this connection, never from the event payload. Every
// tab in the session room learns the new expiry through the notifier before
// this call returns; the rotated pair itself is handed to the requester
// alone, which holds it in memory until its cookies are rewritten over HTTP.
// Returns the new refresh token so the transport can serve the connection's
// next rotation, or "" on failure.
func (g *Gateway) HandleTokenRefresh(ctx context.Context, client *Client, refreshToken string) string {
	tokens, err := g.auth.Refresh(ctx, refreshToken, nil)
	if err != nil {
		g.logger.Warn().Err(err).
			Str("session_id", client.SessionID).
			Str("tab_id", client.TabID).
			Msg("realtime token refresh failed")
		g.rooms.EmitTo(client.ID, Event{Name: EventTokenRefreshError, Payload: ErrorPayload{
			Message: err.Error(),
		}})
		return ""
	}

	g.rooms.EmitTo(client.ID, Event{Name: EventTokenRotated, Payload: TokenRotatedPayload{
		AccessToken:      tokens.AccessToken,
		RefreshToken:     tokens.RefreshToken,
		AccessExpiresIn:  tokens.AccessExpiresIn,
		RefreshExpiresIn: tokens.RefreshExpiresIn,
	}})
	return tokens.RefreshToken
}

// HandleLeaderClaim runs the election for the claimant's device and
// broadcasts the winner to every tab on that device. Claims are processed
// through a single strategy so concurrent claimants converge on one leader.
func (g *Gateway) HandleLeaderClaim(client *Client, payload LeaderClaimPayload) {
	room := "device:" + client.Fingerprint
	winner := g.board.elect(room, g.leader, LeaderClaim{
		TabID:        payload.TabID,
		TabCreatedAt: payload.TabCreatedAt,
	})

	g.rooms.Emit(room, Event{Name: EventLeaderElected, Payload: LeaderElectedPayload{
		TabID: winner.TabID,
	}})
}

// NotifyTimeoutWarning implements usecase.RealtimeNotifier.
func (g *Gateway) NotifyTimeoutWarning(session *model.Session, expiresIn time.Duration) {
	g.rooms.Emit(session.Room(), Event{Name: EventSessionTimeoutWarning, Payload: TimeoutWarningPayload{
		SessionID: session.ID.Hex(),
		ExpiresIn: int64(expiresIn.Seconds()),
		Message:   "session will expire soon due to inactivity",
	}})
}

// NotifySessionExpired implements usecase.RealtimeNotifier. The terminal
// event is emitted before the room's connections are closed so every client
// learns the reason for the disconnect.
func (g *Gateway) NotifySessionExpired(session *model.Session) {
	room := session.Room()
	g.rooms.Emit(room, Event{Name: EventSessionExpired, Payload: SessionTerminalPayload{
		SessionID: session.ID.Hex(),
		Reason:    "absolute_timeout",
		Message:   "session expired",
	}})
	g.rooms.DisconnectRoom(room)
}

// NotifySessionTerminated implements usecase.RealtimeNotifier.
func (g *Gateway) NotifySessionTerminated(session *model.Session, reason string) {
	room := session.Room()
	g.rooms.Emit(room, Event{Name: EventSessionTerminated, Payload: SessionTerminalPayload{
		SessionID: session.ID.Hex(),
		Reason:    reason,
		Message:   "session terminated",
	}})
	g.rooms.DisconnectRoom(room)
}

// NotifyTokenRefreshed implements usecase.RealtimeNotifier. Only expiry
// metadata crosses the wire; raw token values stay in cookies.
func (g *Gateway) NotifyTokenRefreshed(session *model.Session, accessExpiresIn time.Duration) {
	g.rooms.Emit(session.Room(), Event{Name: EventTokenRefreshed, Payload: TokenRefreshedPayload{
		ExpiresIn: int64(accessExpiresIn.Seconds()),
	}})
}

// NotifyPasswordChanged implements usecase.RealtimeNotifier.
func (g *Gateway) NotifyPasswordChanged(userID string) {
	g.rooms.Emit("user:"+userID, Event{Name: EventPasswordChanged, Payload: PasswordChangedPayload{
		Timestamp: time.Now().UnixMilli(),
	}})
}
