package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/config"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/model"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/repository"
)

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu          sync.Mutex
	warnings    []string
	expired     []string
	terminated  map[string]string
	refreshed   []string
	pwdChanged  []string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{terminated: make(map[string]string)}
}

func (n *recordingNotifier) NotifyTimeoutWarning(session *model.Session, _ time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, session.ID.Hex())
}

func (n *recordingNotifier) NotifySessionExpired(session *model.Session) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, session.ID.Hex())
}

func (n *recordingNotifier) NotifySessionTerminated(session *model.Session, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.terminated[session.ID.Hex()] = reason
}

func (n *recordingNotifier) NotifyTokenRefreshed(session *model.Session, _ time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refreshed = append(n.refreshed, session.ID.Hex())
}

func (n *recordingNotifier) NotifyPasswordChanged(userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pwdChanged = append(n.pwdChanged, userID)
}

func defaultSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		TTL:                  24 * time.Hour,
		RememberMeTTL:        720 * time.Hour,
		IdleTimeout:          30 * time.Minute,
		IdleWarningThreshold: 0.8,
		SweepInterval:        time.Minute,
	}
}

func newTestSessions(cfg config.SessionConfig) (SessionUsecase, repository.SessionRepository, *recordingNotifier) {
	repo := repository.NewSessionMemoryRepository()
	logger := zerolog.Nop()
	sessions := NewSessionUsecase(repo, cfg, &logger)
	notifier := newRecordingNotifier()
	sessions.SetNotifier(notifier)
	return sessions, repo, notifier
}

func createTestSession(t *testing.T, sessions SessionUsecase, userID string) *model.Session {
	t.Helper()

	session, err := sessions.CreateSession(context.Background(), CreateSessionParams{
		UserID:      userID,
		DeviceID:    "device-1",
		Fingerprint: "fp-1",
		IPAddress:   "198.51.100.7",
		UserAgent:   "test-agent",
		CSRFToken:   "csrf-1",
		TabID:       "tab-1",
	})
	require.NoError(t, err)
	return session
}

func TestCreateSession_TTL(t *testing.T) {
	sessions, _, _ := newTestSessions(defaultSessionConfig())
	ctx := context.Background()

	session := createTestSession(t, sessions, "user-1")
	assert.Equal(t, model.SessionActive, session.Status)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), session.ExpiresAt, 5*time.Second)

	remembered, err := sessions.CreateSession(ctx, CreateSessionParams{
		UserID:     "user-1",
		CSRFToken:  "csrf-2",
		RememberMe: true,
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(720*time.Hour), remembered.ExpiresAt, 5*time.Second)
}

func TestUpdateSessionActivity_RevivesIdleWarned(t *testing.T) {
	sessions, repo, _ := newTestSessions(defaultSessionConfig())
	ctx := context.Background()

	session := createTestSession(t, sessions, "user-1")

	marked, err := repo.MarkIdleWarned(ctx, session.ID.Hex(), time.Now())
	require.NoError(t, err)
	require.True(t, marked)

	require.NoError(t, sessions.UpdateSessionActivity(ctx, session.ID.Hex(), "user_activity", nil))

	got, err := sessions.GetSession(ctx, session.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, got.Status)
}

func TestUpdateSessionActivity_IgnoresTerminalSessions(t *testing.T) {
	sessions, _, _ := newTestSessions(defaultSessionConfig())
	ctx := context.Background()

	session := createTestSession(t, sessions, "user-1")
	require.NoError(t, sessions.EndSession(ctx, session.ID.Hex(), "logout"))

	// Racing activity must not revive a terminated session.
	require.NoError(t, sessions.UpdateSessionActivity(ctx, session.ID.Hex(), "heartbeat", nil))

	got, err := sessions.GetSession(ctx, session.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.SessionEnded, got.Status)
}

func TestGetSessionTimeoutInfo_ApproachingIdle(t *testing.T) {
	sessions, repo, _ := newTestSessions(defaultSessionConfig())
	ctx := context.Background()

	session := createTestSession(t, sessions, "user-1")

	// Backdate last activity to 25 minutes ago; the warning threshold for a
	// 30 minute idle timeout at 0.8 is 24 minutes.
	_, err := repo.UpdateActivity(ctx, session.ID.Hex(), time.Now().Add(-25*time.Minute), nil)
	require.NoError(t, err)

	info, err := sessions.GetSessionTimeoutInfo(ctx, session.ID.Hex())
	require.NoError(t, err)
	assert.True(t, info.IsApproachingIdleTimeout)
	assert.InDelta(t, (25 * time.Minute).Seconds(), info.IdleTime.Seconds(), 5)
	assert.Equal(t, 30*time.Minute, info.IdleTimeout)
	assert.Greater(t, info.ExpiresIn, time.Duration(0))
}

func TestGetSessionTimeoutInfo_FreshSession(t *testing.T) {
	sessions, _, _ := newTestSessions(defaultSessionConfig())
	ctx := context.Background()

	session := createTestSession(t, sessions, "user-1")

	info, err := sessions.GetSessionTimeoutInfo(ctx, session.ID.Hex())
	require.NoError(t, err)
	assert.False(t, info.IsApproachingIdleTimeout)
}

func TestGetSessionTimeoutInfo_UnknownSession(t *testing.T) {
	sessions, _, _ := newTestSessions(defaultSessionConfig())

	_, err := sessions.GetSessionTimeoutInfo(context.Background(), "64b0c2f4a1d2e3f4a5b6c7d8")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTerminateSession_NotifiesRoomOnce(t *testing.T) {
	sessions, _, notifier := newTestSessions(defaultSessionConfig())
	ctx := context.Background()

	session := createTestSession(t, sessions, "user-1")

	require.NoError(t, sessions.TerminateSession(ctx, session.ID.Hex(), "admin_action"))
	assert.Equal(t, "admin_action", notifier.terminated[session.ID.Hex()])

	// Terminating again is a no-op and does not re-notify.
	notifier.terminated = map[string]string{}
	require.NoError(t, sessions.TerminateSession(ctx, session.ID.Hex(), "admin_action"))
	assert.Empty(t, notifier.terminated)
}

func TestTerminateAllUserSessions(t *testing.T) {
	sessions, _, notifier := newTestSessions(defaultSessionConfig())
	ctx := context.Background()

	first := createTestSession(t, sessions, "user-1")
	second := createTestSession(t, sessions, "user-1")
	other := createTestSession(t, sessions, "user-2")

	count, err := sessions.TerminateAllUserSessions(ctx, "user-1", "password_change")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Len(t, notifier.terminated, 2)
	assert.Contains(t, notifier.terminated, first.ID.Hex())
	assert.Contains(t, notifier.terminated, second.ID.Hex())

	untouched, err := sessions.GetSession(ctx, other.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, untouched.Status)
}

func TestEndAllUserSessionsExceptCurrent(t *testing.T) {
	sessions, _, _ := newTestSessions(defaultSessionConfig())
	ctx := context.Background()

	current := createTestSession(t, sessions, "user-1")
	other := createTestSession(t, sessions, "user-1")

	count, err := sessions.EndAllUserSessionsExceptCurrent(ctx, "user-1", current.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	kept, err := sessions.GetSession(ctx, current.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, kept.Status)

	ended, err := sessions.GetSession(ctx, other.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.SessionEnded, ended.Status)
}

func TestCleanupExpiredSessions_Idempotent(t *testing.T) {
	cfg := defaultSessionConfig()
	cfg.TTL = -time.Minute // sessions are born past their absolute expiry
	sessions, _, notifier := newTestSessions(cfg)
	ctx := context.Background()

	createTestSession(t, sessions, "user-1")
	createTestSession(t, sessions, "user-1")

	count, err := sessions.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Len(t, notifier.expired, 2)

	// A second sweep finds nothing left to expire.
	count, err = sessions.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSweepIdleSessions_WarnsOnce(t *testing.T) {
	sessions, repo, notifier := newTestSessions(defaultSessionConfig())
	ctx := context.Background()

	session := createTestSession(t, sessions, "user-1")
	fresh := createTestSession(t, sessions, "user-1")

	_, err := repo.UpdateActivity(ctx, session.ID.Hex(), time.Now().Add(-25*time.Minute), nil)
	require.NoError(t, err)

	warned, err := sessions.SweepIdleSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, warned)
	assert.Equal(t, []string{session.ID.Hex()}, notifier.warnings)

	got, err := sessions.GetSession(ctx, session.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.SessionIdleWarned, got.Status)

	untouched, err := sessions.GetSession(ctx, fresh.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, untouched.Status)

	// The same idle session is not warned twice.
	warned, err = sessions.SweepIdleSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, warned)
}
