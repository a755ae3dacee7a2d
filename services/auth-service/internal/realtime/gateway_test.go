package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/config"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/repository"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/token"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/usecase"
	"github.com/TheSpideX/supporthub-api/shared/auth"
)

type gatewayFixture struct {
	hub      *Hub
	gateway  *Gateway
	auth     usecase.AuthUsecase
	sessions usecase.SessionUsecase
	login    *usecase.LoginResult
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	logger := zerolog.Nop()

	tokenCfg := config.TokenConfig{
		AccessTokenSecret:     "access-secret",
		RefreshTokenSecret:    "refresh-secret",
		AccessTokenExpiresIn:  15 * time.Minute,
		RefreshTokenExpiresIn: time.Hour,
		Issuer:                "supporthub-test",
	}
	engine := token.NewEngine(
		auth.NewJWTAuthenticator(tokenCfg.Issuer, tokenCfg.Issuer),
		repository.NewRevokedTokenMemoryRepository(),
		tokenCfg,
	)

	devices := usecase.NewDeviceUsecase(repository.NewDeviceMemoryRepository(), usecase.DefaultRiskWeights)
	sessions := usecase.NewSessionUsecase(
		repository.NewSessionMemoryRepository(),
		config.SessionConfig{
			TTL:                  24 * time.Hour,
			RememberMeTTL:        720 * time.Hour,
			IdleTimeout:          30 * time.Minute,
			IdleWarningThreshold: 0.8,
		},
		&logger,
	)
	authUsecase := usecase.NewAuthUsecase(
		repository.NewUserMemoryRepository(),
		devices,
		sessions,
		engine,
		nil,
		config.SecurityConfig{MaxLoginAttempts: 5, LockoutDuration: 15 * time.Minute},
		&logger,
	)

	hub := NewHub(&logger)
	gateway := NewGateway(hub, authUsecase, sessions, devices, config.RealtimeConfig{
		HandshakeTimeout: 5 * time.Second,
		SendQueueSize:    32,
	}, &logger)
	sessions.SetNotifier(gateway)
	authUsecase.SetNotifier(gateway)

	ctx := context.Background()
	_, err := authUsecase.Register(ctx, usecase.RegisterParams{
		Email:     "dana@example.com",
		Password:  "correct horse battery",
		FirstName: "Dana",
		LastName:  "Reyes",
	})
	require.NoError(t, err)

	login, err := authUsecase.Login(ctx, usecase.LoginParams{
		Email:    "dana@example.com",
		Password: "correct horse battery",
		Device: usecase.DeviceInfo{
			UserAgent:        "Mozilla/5.0 (Macintosh)",
			Browser:          "Chrome",
			OS:               "macOS",
			DeviceType:       "desktop",
			Platform:         "MacIntel",
			ScreenResolution: "2560x1440",
			Timezone:         "Europe/Berlin",
			Language:         "en-US",
			IPAddress:        "198.51.100.7",
		},
	}, nil)
	require.NoError(t, err)

	return &gatewayFixture{
		hub:      hub,
		gateway:  gateway,
		auth:     authUsecase,
		sessions: sessions,
		login:    login,
	}
}

func (f *gatewayFixture) handshake(tabID string) HandshakeParams {
	return HandshakeParams{
		AccessToken: f.login.Tokens.AccessToken,
		CSRFToken:   f.login.Tokens.CSRFToken,
		DeviceID:    f.login.Device.ID.Hex(),
		TabID:       tabID,
	}
}

func (f *gatewayFixture) connectTab(t *testing.T, tabID string) *Client {
	t.Helper()

	client := NewClient("conn-"+tabID, 32)
	require.NoError(t, f.gateway.Connect(context.Background(), client, f.handshake(tabID)))

	ev := nextEvent(t, client)
	require.Equal(t, EventAuthSuccess, ev.Name)
	return client
}

func nextEvent(t *testing.T, client *Client) Event {
	t.Helper()

	select {
	case ev := <-client.Send:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

// drainUntil returns the first queued event with the given name, discarding
// anything delivered before it.
func drainUntil(t *testing.T, client *Client, name string) Event {
	t.Helper()

	for {
		ev := nextEvent(t, client)
		if ev.Name == name {
			return ev
		}
	}
}

func assertClosed(t *testing.T, client *Client) {
	t.Helper()

	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("client was not disconnected")
	}
}

func TestConnect_Success(t *testing.T) {
	fixture := newGatewayFixture(t)

	client := NewClient("conn-1", 32)
	require.NoError(t, fixture.gateway.Connect(context.Background(), client, fixture.handshake("tab-1")))

	ev := nextEvent(t, client)
	require.Equal(t, EventAuthSuccess, ev.Name)
	payload, ok := ev.Payload.(AuthSuccessPayload)
	require.True(t, ok)
	assert.Equal(t, fixture.login.Session.ID.Hex(), payload.SessionID)
	assert.Equal(t, fixture.login.User.ID.Hex(), client.UserID)
	assert.Equal(t, fixture.login.Device.Fingerprint, client.Fingerprint)
}

func TestConnect_MissingToken(t *testing.T) {
	fixture := newGatewayFixture(t)

	client := NewClient("conn-1", 32)
	params := fixture.handshake("tab-1")
	params.AccessToken = ""

	err := fixture.gateway.Connect(context.Background(), client, params)
	require.ErrorIs(t, err, ErrMissingToken)

	ev := nextEvent(t, client)
	assert.Equal(t, EventAuthError, ev.Name)
	assertClosed(t, client)
}

func TestConnect_InvalidToken(t *testing.T) {
	fixture := newGatewayFixture(t)

	client := NewClient("conn-1", 32)
	params := fixture.handshake("tab-1")
	params.AccessToken = "not-a-jwt"

	err := fixture.gateway.Connect(context.Background(), client, params)
	require.ErrorIs(t, err, token.ErrTokenInvalid)
	assertClosed(t, client)
}

func TestConnect_CSRFMismatch(t *testing.T) {
	fixture := newGatewayFixture(t)

	client := NewClient("conn-1", 32)
	params := fixture.handshake("tab-1")
	params.CSRFToken = "forged"

	err := fixture.gateway.Connect(context.Background(), client, params)
	require.ErrorIs(t, err, usecase.ErrCSRFMismatch)
	assertClosed(t, client)
}

func TestConnect_ForeignDeviceRejected(t *testing.T) {
	fixture := newGatewayFixture(t)

	client := NewClient("conn-1", 32)
	params := fixture.handshake("tab-1")
	params.DeviceID = "64b0c2f4a1d2e3f4a5b6c7d8"

	err := fixture.gateway.Connect(context.Background(), client, params)
	require.ErrorIs(t, err, usecase.ErrDeviceMismatch)
	assertClosed(t, client)
}

func TestConnect_TerminatedSessionRejected(t *testing.T) {
	fixture := newGatewayFixture(t)
	ctx := context.Background()

	require.NoError(t, fixture.sessions.TerminateSession(ctx, fixture.login.Session.ID.Hex(), "logout"))

	client := NewClient("conn-1", 32)
	err := fixture.gateway.Connect(ctx, client, fixture.handshake("tab-1"))
	require.ErrorIs(t, err, usecase.ErrSessionExpired)
	assertClosed(t, client)
}

func TestHeartbeat_EchoesServerTime(t *testing.T) {
	fixture := newGatewayFixture(t)
	client := fixture.connectTab(t, "tab-1")

	fixture.gateway.HandleHeartbeat(context.Background(), client, HeartbeatPayload{
		TabID:     "tab-1",
		Timestamp: time.Now().UnixMilli(),
		IsLeader:  true,
	})

	ev := nextEvent(t, client)
	require.Equal(t, EventHeartbeatResponse, ev.Name)
	payload, ok := ev.Payload.(HeartbeatResponsePayload)
	require.True(t, ok)
	assert.InDelta(t, time.Now().UnixMilli(), payload.Timestamp, 2000)

	// The user room, which this tab is part of, hears that the device is live.
	ev = nextEvent(t, client)
	assert.Equal(t, EventDeviceConnected, ev.Name)
}

func TestTokenRefresh_BroadcastsToAllTabs(t *testing.T) {
	fixture := newGatewayFixture(t)
	first := fixture.connectTab(t, "tab-1")
	second := fixture.connectTab(t, "tab-2")

	next := fixture.gateway.HandleTokenRefresh(context.Background(), first, fixture.login.Tokens.RefreshToken)
	require.NotEmpty(t, next)

	for _, client := range []*Client{first, second} {
		ev := drainUntil(t, client, EventTokenRefreshed)
		payload, ok := ev.Payload.(TokenRefreshedPayload)
		require.True(t, ok)
		assert.Greater(t, payload.ExpiresIn, int64(0))
	}

	// The requester alone receives the rotated pair; its peer only hears the
	// expiry broadcast.
	ev := drainUntil(t, first, EventTokenRotated)
	payload, ok := ev.Payload.(TokenRotatedPayload)
	require.True(t, ok)
	assert.Equal(t, next, payload.RefreshToken)
	assert.NotEmpty(t, payload.AccessToken)
	assert.Greater(t, payload.AccessExpiresIn, int64(0))
	assert.Empty(t, second.Send)
}

func TestTokenRefresh_RotatedPairStaysUsable(t *testing.T) {
	fixture := newGatewayFixture(t)
	tab := fixture.connectTab(t, "tab-1")
	ctx := context.Background()

	next := fixture.gateway.HandleTokenRefresh(ctx, tab, fixture.login.Tokens.RefreshToken)
	require.NotEmpty(t, next)
	ev := drainUntil(t, tab, EventTokenRotated)
	rotated, ok := ev.Payload.(TokenRotatedPayload)
	require.True(t, ok)

	// The delivered access token authenticates over HTTP.
	_, _, err := fixture.auth.GetUserFromToken(ctx, rotated.AccessToken)
	require.NoError(t, err)

	// The delivered refresh token funds the next rotation, so the client is
	// never left holding only a revoked token.
	again := fixture.gateway.HandleTokenRefresh(ctx, tab, next)
	require.NotEmpty(t, again)
	assert.NotEqual(t, next, again)
	drainUntil(t, tab, EventTokenRotated)
}

func TestTokenRefresh_ReplayFailsForRequesterOnly(t *testing.T) {
	fixture := newGatewayFixture(t)
	first := fixture.connectTab(t, "tab-1")
	second := fixture.connectTab(t, "tab-2")
	ctx := context.Background()

	fixture.gateway.HandleTokenRefresh(ctx, first, fixture.login.Tokens.RefreshToken)
	drainUntil(t, first, EventTokenRotated)
	drainUntil(t, second, EventTokenRefreshed)

	// Replaying the consumed token fails; only the requester hears about it.
	fixture.gateway.HandleTokenRefresh(ctx, second, fixture.login.Tokens.RefreshToken)

	ev := nextEvent(t, second)
	assert.Equal(t, EventTokenRefreshError, ev.Name)
	assert.Empty(t, first.Send)
}

func TestLeaderElection_OldestTabWins(t *testing.T) {
	fixture := newGatewayFixture(t)
	first := fixture.connectTab(t, "tab-1")
	second := fixture.connectTab(t, "tab-2")

	fixture.gateway.HandleLeaderClaim(first, LeaderClaimPayload{TabID: "tab-1", TabCreatedAt: 2000})

	for _, client := range []*Client{first, second} {
		ev := drainUntil(t, client, EventLeaderElected)
		assert.Equal(t, LeaderElectedPayload{TabID: "tab-1"}, ev.Payload)
	}

	// An older tab claiming later takes leadership over.
	fixture.gateway.HandleLeaderClaim(second, LeaderClaimPayload{TabID: "tab-2", TabCreatedAt: 1000})

	for _, client := range []*Client{first, second} {
		ev := drainUntil(t, client, EventLeaderElected)
		assert.Equal(t, LeaderElectedPayload{TabID: "tab-2"}, ev.Payload)
	}

	// A younger claimant does not displace the current leader.
	fixture.gateway.HandleLeaderClaim(first, LeaderClaimPayload{TabID: "tab-1", TabCreatedAt: 2000})

	for _, client := range []*Client{first, second} {
		ev := drainUntil(t, client, EventLeaderElected)
		assert.Equal(t, LeaderElectedPayload{TabID: "tab-2"}, ev.Payload)
	}
}

func TestLeaderElection_SurvivesNonLeaderDisconnect(t *testing.T) {
	fixture := newGatewayFixture(t)
	first := fixture.connectTab(t, "tab-1")
	second := fixture.connectTab(t, "tab-2")

	fixture.gateway.HandleLeaderClaim(first, LeaderClaimPayload{TabID: "tab-1", TabCreatedAt: 1000})
	drainUntil(t, first, EventLeaderElected)

	// A non-leader tab closing does not vacate the seat.
	fixture.gateway.Disconnect(second)
	third := fixture.connectTab(t, "tab-3")
	fixture.gateway.HandleLeaderClaim(third, LeaderClaimPayload{TabID: "tab-3", TabCreatedAt: 5000})
	ev := drainUntil(t, third, EventLeaderElected)
	assert.Equal(t, LeaderElectedPayload{TabID: "tab-1"}, ev.Payload)

	// Once the leader itself disconnects, the next claim wins.
	fixture.gateway.Disconnect(first)
	fixture.gateway.HandleLeaderClaim(third, LeaderClaimPayload{TabID: "tab-3", TabCreatedAt: 5000})
	ev = drainUntil(t, third, EventLeaderElected)
	assert.Equal(t, LeaderElectedPayload{TabID: "tab-3"}, ev.Payload)
}

func TestTerminate_EventPrecedesDisconnect(t *testing.T) {
	fixture := newGatewayFixture(t)
	first := fixture.connectTab(t, "tab-1")
	second := fixture.connectTab(t, "tab-2")
	ctx := context.Background()

	require.NoError(t, fixture.sessions.TerminateSession(ctx, fixture.login.Session.ID.Hex(), "logout"))

	for _, client := range []*Client{first, second} {
		assertClosed(t, client)

		ev := drainUntil(t, client, EventSessionTerminated)
		payload, ok := ev.Payload.(SessionTerminalPayload)
		require.True(t, ok)
		assert.Equal(t, "logout", payload.Reason)
		assert.Equal(t, fixture.login.Session.ID.Hex(), payload.SessionID)
	}
}

func TestSessionExpiry_NotifiesRoom(t *testing.T) {
	fixture := newGatewayFixture(t)
	client := fixture.connectTab(t, "tab-1")

	fixture.gateway.NotifySessionExpired(fixture.login.Session)

	assertClosed(t, client)
	ev := drainUntil(t, client, EventSessionExpired)
	payload, ok := ev.Payload.(SessionTerminalPayload)
	require.True(t, ok)
	assert.Equal(t, "absolute_timeout", payload.Reason)
}

func TestActivity_KeepsSessionStatusLive(t *testing.T) {
	fixture := newGatewayFixture(t)
	client := fixture.connectTab(t, "tab-1")
	ctx := context.Background()

	fixture.gateway.HandleActivity(ctx, client, ActivityPayload{
		TabID:     "tab-1",
		Timestamp: time.Now().UnixMilli(),
	})

	info, err := fixture.sessions.GetSessionTimeoutInfo(ctx, fixture.login.Session.ID.Hex())
	require.NoError(t, err)
	assert.False(t, info.IsApproachingIdleTimeout)
	assert.Less(t, info.IdleTime, time.Minute)
}
