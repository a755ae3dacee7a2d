package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/config"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/model"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/repository"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/token"
	authtypes "github.com/TheSpideX/supporthub-api/services/auth-service/pkg/types"
	"github.com/TheSpideX/supporthub-api/shared/security"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrSessionExpired     = errors.New("session expired")
	ErrUserNotFound       = errors.New("user not found")
	ErrCSRFMismatch       = errors.New("csrf token mismatch")
	ErrDeviceMismatch     = errors.New("device does not belong to user")
)

// CookieWriter is the capability the orchestrator uses to write auth cookies.
// The HTTP layer and test harnesses each provide their own implementation.
type CookieWriter interface {
	SetAuthCookies(tokens *authtypes.Tokens)
	ClearAuthCookies()
}

// SecurityMailer sends security notification emails. Satisfied by shared/mailer.
type SecurityMailer interface {
	SendHTML(to []string, subject, htmlBody string) error
}

// RegisterParams defines the parameters for user registration.
type RegisterParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// LoginParams defines the parameters for user login.
type LoginParams struct {
	Email      string
	Password   string
	Device     DeviceInfo
	RememberMe bool
	TabID      string
}

// LogoutParams identifies the session being logged out and carries the CSRF
// token presented by the client. AccessToken, when set, is blacklisted so it
// stops verifying immediately rather than riding out its remaining lifetime.
type LogoutParams struct {
	SessionID   string
	CSRFToken   string
	AccessToken string
}

// LoginResult is returned on successful login.
type LoginResult struct {
	User    *model.User
	Session *model.Session
	Device  *model.Device
	Tokens  *authtypes.Tokens
}

// AuthUsecase composes the device registry, session store, and token engine
// into the login, logout, refresh, and token-resolution workflows.
type AuthUsecase interface {
	Register(ctx context.Context, params RegisterParams) (*model.User, error)

	// Login validates credentials, resolves the device, creates a session,
	// issues the token triple, and writes cookies through the sink.
	Login(ctx context.Context, params LoginParams, sink CookieWriter) (*LoginResult, error)

	// Logout validates the CSRF token, terminates the session, and clears
	// cookies. Idempotent: logging out an ended session still clears cookies.
	Logout(ctx context.Context, params LogoutParams, sink CookieWriter) error

	// LogoutAllDevices terminates every session of the user and returns the
	// number affected.
	LogoutAllDevices(ctx context.Context, userID string) (int64, error)

	// Refresh rotates the refresh token after confirming the backing session
	// is still live, writes the new cookies, and broadcasts the refresh.
	Refresh(ctx context.Context, refreshToken string, sink CookieWriter) (*authtypes.Tokens, error)

	// GetUserFromToken verifies the access token, cross-checks the session is
	// still active, and resolves the user.
	GetUserFromToken(ctx context.Context, accessToken string) (*model.User, *authtypes.JWTClaims, error)

	// ChangePassword verifies the current password, replaces the hash, and
	// terminates every other session of the user.
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error

	SetNotifier(notifier RealtimeNotifier)
}

type authUsecase struct {
	userRepo  repository.UserRepository
	devices   DeviceUsecase
	sessions  SessionUsecase
	engine    *token.Engine
	mailer    SecurityMailer
	notifier  RealtimeNotifier
	cfg       config.SecurityConfig
	logger    *zerolog.Logger
}

// NewAuthUsecase creates an AuthUsecase. The mailer may be nil to disable
// security alert emails; the notifier defaults to a noop.
func NewAuthUsecase(
	userRepo repository.UserRepository,
	devices DeviceUsecase,
	sessions SessionUsecase,
	engine *token.Engine,
	mailer SecurityMailer,
	cfg config.SecurityConfig,
	logger *zerolog.Logger,
) AuthUsecase {
	return &authUsecase{
		userRepo: userRepo,
		devices:  devices,
		sessions: sessions,
		engine:   engine,
		mailer:   mailer,
		notifier: NoopNotifier{},
		cfg:      cfg,
		logger:   logger,
	}
}

func (u *authUsecase) SetNotifier(notifier RealtimeNotifier) {
	if notifier != nil {
		u.notifier = notifier
	}
}

func (u *authUsecase) Register(ctx context.Context, params RegisterParams) (*model.User, error) {
	passwordHash, err := security.HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	role := params.Role
	if role == "" {
		role = "member"
	}

	user, err := u.userRepo.CreateUser(ctx, &model.User{
		Email: params.Email,
		Profile: model.UserProfile{
			FirstName: params.FirstName,
			LastName:  params.LastName,
		},
		Role:     role,
		IsActive: true,
		Security: model.UserSecurity{
			PasswordHash: passwordHash,
		},
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}

	return user, nil
}

func (u *authUsecase) Login(ctx context.Context, params LoginParams, sink CookieWriter) (*LoginResult, error) {
	now := time.Now()

	user, err := u.userRepo.GetUserByEmail(ctx, params.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// Lockout applies regardless of password correctness.
	if user.Locked(now) {
		return nil, ErrAccountLocked
	}

	if ok, err := security.VerifyPassword(params.Password, user.Security.PasswordHash); err != nil {
		return nil, err
	} else if !ok {
		return nil, u.recordFailedAttempt(ctx, user, now)
	}

	if err := u.userRepo.RecordSuccessfulLogin(ctx, user.ID.Hex(), now); err != nil {
		return nil, err
	}
	user.Security.LoginAttempts = 0
	user.Security.LockedUntil = nil
	user.Security.LastLogin = &now

	device, created, err := u.devices.RecordDeviceInfo(ctx, user.ID.Hex(), params.Device)
	if err != nil {
		return nil, err
	}
	if created {
		u.sendNewDeviceAlert(user, device, params.Device.IPAddress)
	}

	csrfToken := u.engine.GenerateCSRFToken()
	session, err := u.sessions.CreateSession(ctx, CreateSessionParams{
		UserID:      user.ID.Hex(),
		DeviceID:    device.ID.Hex(),
		Fingerprint: device.Fingerprint,
		IPAddress:   params.Device.IPAddress,
		UserAgent:   params.Device.UserAgent,
		CSRFToken:   csrfToken,
		RememberMe:  params.RememberMe,
		TabID:       params.TabID,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := u.issueTokens(user, session, csrfToken)
	if err != nil {
		return nil, err
	}

	if sink != nil {
		sink.SetAuthCookies(tokens)
	}

	return &LoginResult{
		User:    user,
		Session: session,
		Device:  device,
		Tokens:  tokens,
	}, nil
}

func (u *authUsecase) Logout(ctx context.Context, params LogoutParams, sink CookieWriter) error {
	clearCookies := func() {
		if sink != nil {
			sink.ClearAuthCookies()
		}
	}

	session, err := u.sessions.GetSession(ctx, params.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			clearCookies()
			return nil
		}
		return err
	}

	// A forged CSRF token keeps the session and the caller's cookies intact.
	if subtle.ConstantTimeCompare([]byte(session.CSRFToken), []byte(params.CSRFToken)) != 1 {
		return ErrCSRFMismatch
	}

	if err := u.sessions.TerminateSession(ctx, params.SessionID, "logout"); err != nil {
		return err
	}

	if params.AccessToken != "" {
		if err := u.engine.BlacklistToken(ctx, params.AccessToken, token.KindAccess, "logout"); err != nil {
			u.logger.Warn().Err(err).Str("session_id", params.SessionID).Msg("failed to blacklist access token")
		}
	}

	clearCookies()
	return nil
}

func (u *authUsecase) LogoutAllDevices(ctx context.Context, userID string) (int64, error) {
	return u.sessions.TerminateAllUserSessions(ctx, userID, "logout_all_devices")
}

func (u *authUsecase) Refresh(ctx context.Context, refreshToken string, sink CookieWriter) (*authtypes.Tokens, error) {
	claims, err := u.engine.VerifyRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	// Tokens do not self-invalidate on session termination; cross-check.
	session, err := u.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, err
	}
	if session.Status.Terminal() || session.ExpiresAt.Before(time.Now()) {
		return nil, ErrSessionExpired
	}

	tokens, _, err := u.engine.RefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	tokens.CSRFToken = session.CSRFToken

	if err := u.sessions.UpdateSessionActivity(ctx, session.ID.Hex(), "token_refresh", nil); err != nil {
		u.logger.Error().Err(err).Str("session_id", session.ID.Hex()).Msg("failed to record refresh activity")
	}

	if sink != nil {
		sink.SetAuthCookies(tokens)
	}

	u.notifier.NotifyTokenRefreshed(session, time.Duration(tokens.AccessExpiresIn)*time.Second)

	return tokens, nil
}

func (u *authUsecase) GetUserFromToken(
	ctx context.Context,
	accessToken string,
) (*model.User, *authtypes.JWTClaims, error) {
	claims, err := u.engine.VerifyAccessToken(ctx, accessToken)
	if err != nil {
		return nil, nil, err
	}

	session, err := u.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, nil, ErrSessionExpired
		}
		return nil, nil, err
	}
	if session.Status.Terminal() || session.ExpiresAt.Before(time.Now()) {
		return nil, nil, ErrSessionExpired
	}

	user, err := u.userRepo.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}

	return user, claims, nil
}

func (u *authUsecase) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := u.userRepo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if ok, err := security.VerifyPassword(currentPassword, user.Security.PasswordHash); err != nil {
		return err
	} else if !ok {
		return ErrInvalidCredentials
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}

	now := time.Now()
	if err := u.userRepo.UpdatePassword(ctx, userID, passwordHash, now); err != nil {
		return err
	}

	// Every other session dies with the old password.
	if _, err := u.sessions.TerminateAllUserSessions(ctx, userID, "password_change"); err != nil {
		u.logger.Error().Err(err).Str("user_id", userID).Msg("failed to terminate sessions after password change")
	}
	u.notifier.NotifyPasswordChanged(userID)

	return nil
}

// recordFailedAttempt increments the counter and escalates to a timed lockout
// once the threshold is crossed.
func (u *authUsecase) recordFailedAttempt(ctx context.Context, user *model.User, now time.Time) error {
	var lockedUntil *time.Time
	if user.Security.LoginAttempts+1 >= u.cfg.MaxLoginAttempts {
		until := now.Add(u.cfg.LockoutDuration)
		lockedUntil = &until
	}

	if _, err := u.userRepo.RecordFailedLogin(ctx, user.ID.Hex(), lockedUntil); err != nil {
		u.logger.Error().Err(err).Str("user_id", user.ID.Hex()).Msg("failed to record failed login")
	}

	if lockedUntil != nil {
		return ErrTooManyAttempts
	}
	return ErrInvalidCredentials
}

func (u *authUsecase) issueTokens(
	user *model.User,
	session *model.Session,
	csrfToken string,
) (*authtypes.Tokens, error) {
	claims := token.Claims{
		UserID:    user.ID.Hex(),
		SessionID: session.ID.Hex(),
		DeviceID:  session.DeviceID,
		Role:      user.Role,
	}

	accessToken, accessExp, err := u.engine.GenerateAccessToken(claims)
	if err != nil {
		return nil, err
	}

	refreshToken, refreshExp, err := u.engine.GenerateRefreshToken(claims)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &authtypes.Tokens{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		CSRFToken:        csrfToken,
		AccessExpiresIn:  int64(accessExp.Sub(now).Seconds()),
		RefreshExpiresIn: int64(refreshExp.Sub(now).Seconds()),
	}, nil
}

func (u *authUsecase) sendNewDeviceAlert(user *model.User, device *model.Device, ip string) {
	if u.mailer == nil {
		return
	}

	htmlBody := fmt.Sprintf(`
		<p>Hi %s,</p>
		<p>A new device just signed in to your SupportHub account:</p>
		<p><strong>%s</strong> from IP %s</p>
		<p>If this was you, no action is needed. If you don't recognize this
		device, change your password and sign out of all devices immediately.</p>

		<p>Thank you,</p>
		<p>SupportHub Team</p>
	`, user.Profile.FirstName, device.Name, ip)

	// Best-effort: a mail failure never fails the login.
	if err := u.mailer.SendHTML([]string{user.Email}, "New device sign-in", htmlBody); err != nil {
		u.logger.Error().Err(err).Str("user_id", user.ID.Hex()).Msg("failed to send new device alert")
	}
}
