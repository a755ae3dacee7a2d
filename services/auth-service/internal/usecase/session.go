package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/config"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/model"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/repository"
)

// ErrSessionNotFound is returned when a session ID resolves to nothing.
var ErrSessionNotFound = errors.New("session not found")

// CreateSessionParams defines the parameters for creating a session.
type CreateSessionParams struct {
	UserID      string
	DeviceID    string
	Fingerprint string
	IPAddress   string
	UserAgent   string
	CSRFToken   string
	RememberMe  bool
	TabID       string
}

// TimeoutInfo reports how close a session is to its idle timeout.
type TimeoutInfo struct {
	SessionID                string
	IdleTime                 time.Duration
	IdleTimeout              time.Duration
	ExpiresIn                time.Duration
	IsApproachingIdleTimeout bool
}

// SessionUsecase owns the session lifecycle: creation, activity tracking,
// idle/absolute expiry, and single/bulk termination.
type SessionUsecase interface {
	CreateSession(ctx context.Context, params CreateSessionParams) (*model.Session, error)
	GetSession(ctx context.Context, id string) (*model.Session, error)
	GetUserSessions(ctx context.Context, userID string) ([]*model.Session, error)

	// UpdateSessionActivity bumps last_activity and merges metadata. Activity
	// on a terminal session is a no-op; callers need not check the result for
	// the realtime path to stay correct.
	UpdateSessionActivity(ctx context.Context, sessionID, eventType string, meta *model.SessionMetadata) error

	GetSessionTimeoutInfo(ctx context.Context, sessionID string) (*TimeoutInfo, error)

	// EndSession transitions the session to ended. Idempotent: ending an
	// already-terminal session is a no-op, not an error.
	EndSession(ctx context.Context, sessionID, reason string) error

	// EndAllUserSessionsExceptCurrent bulk-ends every other live session of
	// the user and returns the number affected.
	EndAllUserSessionsExceptCurrent(ctx context.Context, userID, currentSessionID string) (int64, error)

	// TerminateSession ends one session and pushes the terminal event into its
	// realtime room.
	TerminateSession(ctx context.Context, sessionID, reason string) error

	// TerminateAllUserSessions ends every live session of the user, notifying
	// each session room. Best-effort per row; returns the number affected.
	TerminateAllUserSessions(ctx context.Context, userID, reason string) (int64, error)

	// CleanupExpiredSessions sweeps live sessions past their absolute expiry
	// into expired and returns the count. Idempotent and safe to overlap.
	CleanupExpiredSessions(ctx context.Context) (int64, error)

	// SweepIdleSessions transitions idle sessions to idle_warned and pushes
	// timeout warnings. Returns the number of sessions warned.
	SweepIdleSessions(ctx context.Context) (int, error)

	SetNotifier(notifier RealtimeNotifier)
}

type sessionUsecase struct {
	sessionRepo repository.SessionRepository
	notifier    RealtimeNotifier
	cfg         config.SessionConfig
	logger      *zerolog.Logger
}

// NewSessionUsecase creates a SessionUsecase. The notifier defaults to a noop
// until the realtime gateway is wired in.
func NewSessionUsecase(
	sessionRepo repository.SessionRepository,
	cfg config.SessionConfig,
	logger *zerolog.Logger,
) SessionUsecase {
	return &sessionUsecase{
		sessionRepo: sessionRepo,
		notifier:    NoopNotifier{},
		cfg:         cfg,
		logger:      logger,
	}
}

func (u *sessionUsecase) SetNotifier(notifier RealtimeNotifier) {
	if notifier != nil {
		u.notifier = notifier
	}
}

func (u *sessionUsecase) CreateSession(ctx context.Context, params CreateSessionParams) (*model.Session, error) {
	now := time.Now()

	ttl := u.cfg.TTL
	if params.RememberMe {
		ttl = u.cfg.RememberMeTTL
	}

	session := &model.Session{
		UserID:       params.UserID,
		DeviceID:     params.DeviceID,
		Fingerprint:  params.Fingerprint,
		IPAddress:    params.IPAddress,
		UserAgent:    params.UserAgent,
		Status:       model.SessionActive,
		CSRFToken:    params.CSRFToken,
		LastActivity: now,
		ExpiresAt:    now.Add(ttl),
		Metadata:     model.SessionMetadata{TabID: params.TabID},
	}

	return u.sessionRepo.CreateSession(ctx, session)
}

func (u *sessionUsecase) GetSession(ctx context.Context, id string) (*model.Session, error) {
	session, err := u.sessionRepo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return session, nil
}

func (u *sessionUsecase) GetUserSessions(ctx context.Context, userID string) ([]*model.Session, error) {
	return u.sessionRepo.GetUserSessions(ctx, userID)
}

func (u *sessionUsecase) UpdateSessionActivity(
	ctx context.Context,
	sessionID, eventType string,
	meta *model.SessionMetadata,
) error {
	updated, err := u.sessionRepo.UpdateActivity(ctx, sessionID, time.Now(), meta)
	if err != nil {
		return err
	}
	if !updated {
		u.logger.Debug().
			Str("session_id", sessionID).
			Str("event", eventType).
			Msg("activity update skipped for non-live session")
	}

	return nil
}

func (u *sessionUsecase) GetSessionTimeoutInfo(ctx context.Context, sessionID string) (*TimeoutInfo, error) {
	session, err := u.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	idle := now.Sub(session.LastActivity)
	warnAfter := time.Duration(float64(u.cfg.IdleTimeout) * u.cfg.IdleWarningThreshold)

	return &TimeoutInfo{
		SessionID:                sessionID,
		IdleTime:                 idle,
		IdleTimeout:              u.cfg.IdleTimeout,
		ExpiresIn:                session.ExpiresAt.Sub(now),
		IsApproachingIdleTimeout: idle >= warnAfter,
	}, nil
}

func (u *sessionUsecase) EndSession(ctx context.Context, sessionID, reason string) error {
	_, err := u.sessionRepo.EndSession(ctx, sessionID, reason, time.Now())
	return err
}

func (u *sessionUsecase) EndAllUserSessionsExceptCurrent(
	ctx context.Context,
	userID, currentSessionID string,
) (int64, error) {
	return u.sessionRepo.EndUserSessions(ctx, userID, currentSessionID, "ended_by_user", time.Now())
}

func (u *sessionUsecase) TerminateSession(ctx context.Context, sessionID, reason string) error {
	session, err := u.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	ended, err := u.sessionRepo.EndSession(ctx, sessionID, reason, time.Now())
	if err != nil {
		return err
	}
	if ended {
		session.Status = model.SessionEnded
		session.Metadata.TerminationReason = reason
		u.notifier.NotifySessionTerminated(session, reason)
	}

	return nil
}

func (u *sessionUsecase) TerminateAllUserSessions(ctx context.Context, userID, reason string) (int64, error) {
	// Snapshot the live sessions first so each room can be notified after the
	// bulk transition; the count comes from the conditional update itself.
	sessions, err := u.sessionRepo.GetUserSessions(ctx, userID)
	if err != nil {
		return 0, err
	}

	ended, err := u.sessionRepo.EndUserSessions(ctx, userID, "", reason, time.Now())
	if err != nil {
		return 0, err
	}

	for _, session := range sessions {
		if session.Status.Terminal() {
			continue
		}
		session.Status = model.SessionEnded
		session.Metadata.TerminationReason = reason
		u.notifier.NotifySessionTerminated(session, reason)
	}

	return ended, nil
}

func (u *sessionUsecase) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	now := time.Now()

	// Snapshot candidates so their rooms can be told why the socket is about
	// to close; the authoritative transition is the conditional bulk update.
	expiring, err := u.sessionRepo.ListExpiringSessions(ctx, now)
	if err != nil {
		return 0, err
	}

	expired, err := u.sessionRepo.ExpireSessions(ctx, now)
	if err != nil {
		return 0, err
	}

	for _, session := range expiring {
		u.notifier.NotifySessionExpired(session)
	}

	return expired, nil
}

func (u *sessionUsecase) SweepIdleSessions(ctx context.Context) (int, error) {
	now := time.Now()
	warnAfter := time.Duration(float64(u.cfg.IdleTimeout) * u.cfg.IdleWarningThreshold)
	cutoff := now.Add(-warnAfter)

	idle, err := u.sessionRepo.ListIdleSessions(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	warned := 0
	for _, session := range idle {
		marked, err := u.sessionRepo.MarkIdleWarned(ctx, session.ID.Hex(), now)
		if err != nil {
			u.logger.Error().Err(err).Str("session_id", session.ID.Hex()).Msg("failed to mark session idle_warned")
			continue
		}
		if !marked {
			continue
		}

		expiresIn := u.cfg.IdleTimeout - now.Sub(session.LastActivity)
		if expiresIn < 0 {
			expiresIn = 0
		}
		u.notifier.NotifyTimeoutWarning(session, expiresIn)
		warned++
	}

	return warned, nil
}
