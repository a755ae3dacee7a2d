package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/config"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/model"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/repository"
	authtypes "github.com/TheSpideX/supporthub-api/services/auth-service/pkg/types"
	"github.com/TheSpideX/supporthub-api/shared/auth"
)

// Token kinds recorded on the blacklist.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims are the identity fields bound into every issued token.
type Claims struct {
	UserID    string
	SessionID string
	DeviceID  string
	Role      string
}

// Engine issues and verifies access, refresh, and CSRF tokens, and owns the
// rotation/blacklist ledger for refresh tokens.
//
// A refresh token moves issued -> active -> rotated|revoked|expired and never
// returns to active. Rotation is single-use: of N concurrent callers
// presenting the same token, exactly one wins; the rest observe ErrTokenRevoked.
type Engine struct {
	jwtAuth auth.JWTAuthenticator
	revoked repository.RevokedTokenRepository
	cfg     config.TokenConfig
}

// NewEngine creates an Engine bound to the given blacklist repository and settings.
func NewEngine(jwtAuth auth.JWTAuthenticator, revoked repository.RevokedTokenRepository, cfg config.TokenConfig) *Engine {
	return &Engine{
		jwtAuth: jwtAuth,
		revoked: revoked,
		cfg:     cfg,
	}
}

// GenerateAccessToken mints a short-lived access token for the given claims.
func (e *Engine) GenerateAccessToken(claims Claims) (string, time.Time, error) {
	return e.generate(claims, e.cfg.AccessTokenSecret, e.cfg.AccessTokenExpiresIn)
}

// GenerateRefreshToken mints a long-lived refresh token for the given claims.
func (e *Engine) GenerateRefreshToken(claims Claims) (string, time.Time, error) {
	return e.generate(claims, e.cfg.RefreshTokenSecret, e.cfg.RefreshTokenExpiresIn)
}

// GenerateCSRFToken returns a random opaque token bound to a session by the
// caller; it carries no signed claims.
func (e *Engine) GenerateCSRFToken() string {
	return uuid.NewString()
}

// VerifyAccessToken validates signature and expiry of an access token and
// rejects blacklisted tokens with ErrTokenRevoked.
func (e *Engine) VerifyAccessToken(ctx context.Context, tokenStr string) (*authtypes.JWTClaims, error) {
	claims, err := e.verify(tokenStr, e.cfg.AccessTokenSecret)
	if err != nil {
		return nil, err
	}

	revoked, err := e.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("%w: access token has been revoked", ErrTokenRevoked)
	}

	return claims, nil
}

// VerifyRefreshToken validates signature and expiry of a refresh token and
// rejects blacklisted tokens with ErrTokenRevoked.
func (e *Engine) VerifyRefreshToken(ctx context.Context, tokenStr string) (*authtypes.JWTClaims, error) {
	claims, err := e.verify(tokenStr, e.cfg.RefreshTokenSecret)
	if err != nil {
		return nil, err
	}

	revoked, err := e.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("%w: refresh token has been revoked", ErrTokenRevoked)
	}

	return claims, nil
}

// RefreshToken rotates a refresh token: the old token is blacklisted
// unconditionally (single-use) and a new access+refresh pair bound to the
// same session is returned. Safe under concurrent callers presenting the same
// old token; losers fail with ErrTokenRevoked.
func (e *Engine) RefreshToken(ctx context.Context, oldRefreshToken string) (*authtypes.Tokens, *authtypes.JWTClaims, error) {
	oldClaims, err := e.verify(oldRefreshToken, e.cfg.RefreshTokenSecret)
	if err != nil {
		return nil, nil, err
	}

	// First writer wins; everyone else sees the duplicate and loses the race.
	revocation := &model.RevokedToken{
		JTI:       oldClaims.ID,
		UserID:    oldClaims.UserID,
		SessionID: oldClaims.SessionID,
		Kind:      KindRefresh,
		Reason:    "rotated",
		ExpiresAt: oldClaims.ExpiresAt.Time,
	}
	if err := e.revoked.Revoke(ctx, revocation); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, nil, fmt.Errorf("%w: refresh token has been revoked", ErrTokenRevoked)
		}
		return nil, nil, err
	}

	claims := Claims{
		UserID:    oldClaims.UserID,
		SessionID: oldClaims.SessionID,
		DeviceID:  oldClaims.DeviceID,
		Role:      oldClaims.Role,
	}

	accessToken, accessExp, err := e.GenerateAccessToken(claims)
	if err != nil {
		return nil, nil, err
	}

	refreshToken, refreshExp, err := e.GenerateRefreshToken(claims)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	tokens := &authtypes.Tokens{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresIn:  int64(accessExp.Sub(now).Seconds()),
		RefreshExpiresIn: int64(refreshExp.Sub(now).Seconds()),
	}

	return tokens, oldClaims, nil
}

// RotateRefreshToken rotates a refresh token for a caller that already holds
// the user record, re-deriving the role claim from the user.
func (e *Engine) RotateRefreshToken(ctx context.Context, oldRefreshToken string, user *model.User) (*authtypes.Tokens, *authtypes.JWTClaims, error) {
	tokens, oldClaims, err := e.RefreshToken(ctx, oldRefreshToken)
	if err != nil {
		return nil, nil, err
	}

	if user != nil && user.Role != oldClaims.Role {
		claims := Claims{
			UserID:    oldClaims.UserID,
			SessionID: oldClaims.SessionID,
			DeviceID:  oldClaims.DeviceID,
			Role:      user.Role,
		}

		accessToken, accessExp, err := e.GenerateAccessToken(claims)
		if err != nil {
			return nil, nil, err
		}
		refreshToken, refreshExp, err := e.GenerateRefreshToken(claims)
		if err != nil {
			return nil, nil, err
		}

		now := time.Now()
		tokens.AccessToken = accessToken
		tokens.RefreshToken = refreshToken
		tokens.AccessExpiresIn = int64(accessExp.Sub(now).Seconds())
		tokens.RefreshExpiresIn = int64(refreshExp.Sub(now).Seconds())
	}

	return tokens, oldClaims, nil
}

// BlacklistToken marks a token as unusable by its JTI. Idempotent: revoking an
// already-revoked token is a no-op. Expired tokens are ignored; they can no
// longer verify anyway.
func (e *Engine) BlacklistToken(ctx context.Context, tokenStr, kind, reason string) error {
	secret := e.cfg.RefreshTokenSecret
	if kind == KindAccess {
		secret = e.cfg.AccessTokenSecret
	}

	claims, err := e.verify(tokenStr, secret)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil
		}
		return err
	}

	revocation := &model.RevokedToken{
		JTI:       claims.ID,
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
		Kind:      kind,
		Reason:    reason,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := e.revoked.Revoke(ctx, revocation); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil
		}
		return err
	}

	return nil
}

func (e *Engine) generate(claims Claims, secret string, expiresIn time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(expiresIn)

	jwtClaims := authtypes.JWTClaims{
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
		DeviceID:  claims.DeviceID,
		Role:      claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   claims.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    e.cfg.Issuer,
			Audience:  jwt.ClaimStrings{e.cfg.Issuer},
		},
	}

	tokenStr, err := e.jwtAuth.GenerateToken(jwtClaims, secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenStr, expiresAt, nil
}

func (e *Engine) verify(tokenStr, secret string) (*authtypes.JWTClaims, error) {
	claims := &authtypes.JWTClaims{}
	if _, err := e.jwtAuth.ValidateTokenWithClaims(tokenStr, secret, claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	return claims, nil
}
