package token

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/config"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/repository"
	"github.com/TheSpideX/supporthub-api/shared/auth"
)

func newTestEngine(t *testing.T, accessTTL, refreshTTL time.Duration) *Engine {
	t.Helper()

	cfg := config.TokenConfig{
		AccessTokenSecret:     "access-secret",
		RefreshTokenSecret:    "refresh-secret",
		AccessTokenExpiresIn:  accessTTL,
		RefreshTokenExpiresIn: refreshTTL,
		Issuer:                "supporthub-test",
	}

	return NewEngine(
		auth.NewJWTAuthenticator(cfg.Issuer, cfg.Issuer),
		repository.NewRevokedTokenMemoryRepository(),
		cfg,
	)
}

func testClaims() Claims {
	return Claims{
		UserID:    "user-1",
		SessionID: "session-1",
		DeviceID:  "device-1",
		Role:      "member",
	}
}

func TestEngine_AccessTokenRoundTrip(t *testing.T) {
	engine := newTestEngine(t, 15*time.Minute, time.Hour)

	tokenStr, expiresAt, err := engine.GenerateAccessToken(testClaims())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := engine.VerifyAccessToken(context.Background(), tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "session-1", claims.SessionID)
	assert.Equal(t, "device-1", claims.DeviceID)
	assert.Equal(t, "member", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestEngine_ExpiredTokenRejected(t *testing.T) {
	engine := newTestEngine(t, -time.Second, time.Hour)

	tokenStr, _, err := engine.GenerateAccessToken(testClaims())
	require.NoError(t, err)

	_, err = engine.VerifyAccessToken(context.Background(), tokenStr)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestEngine_TamperedTokenRejected(t *testing.T) {
	engine := newTestEngine(t, 15*time.Minute, time.Hour)

	tokenStr, _, err := engine.GenerateAccessToken(testClaims())
	require.NoError(t, err)

	parts := strings.Split(tokenStr, ".")
	require.Len(t, parts, 3)
	prefix := "AAAA"
	if strings.HasPrefix(parts[2], prefix) {
		prefix = "BBBB"
	}
	tampered := parts[0] + "." + parts[1] + "." + prefix + parts[2][4:]

	_, err = engine.VerifyAccessToken(context.Background(), tampered)
	require.ErrorIs(t, err, ErrTokenInvalid)
	assert.Contains(t, err.Error(), "signature is invalid")
}

func TestEngine_WrongSecretRejected(t *testing.T) {
	engine := newTestEngine(t, 15*time.Minute, time.Hour)

	// A refresh token verified against the access secret must not pass.
	tokenStr, _, err := engine.GenerateRefreshToken(testClaims())
	require.NoError(t, err)

	_, err = engine.VerifyAccessToken(context.Background(), tokenStr)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestEngine_RefreshRotationIsSingleUse(t *testing.T) {
	engine := newTestEngine(t, 15*time.Minute, time.Hour)
	ctx := context.Background()

	oldToken, _, err := engine.GenerateRefreshToken(testClaims())
	require.NoError(t, err)

	tokens, oldClaims, err := engine.RefreshToken(ctx, oldToken)
	require.NoError(t, err)
	assert.Equal(t, "session-1", oldClaims.SessionID)
	assert.NotEqual(t, oldToken, tokens.RefreshToken)

	// The new pair stays bound to the same session.
	newClaims, err := engine.VerifyRefreshToken(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, oldClaims.SessionID, newClaims.SessionID)
	assert.Equal(t, oldClaims.UserID, newClaims.UserID)

	// Replaying the consumed token fails.
	_, _, err = engine.RefreshToken(ctx, oldToken)
	require.ErrorIs(t, err, ErrTokenRevoked)
	_, err = engine.VerifyRefreshToken(ctx, oldToken)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestEngine_ConcurrentRotationHasOneWinner(t *testing.T) {
	engine := newTestEngine(t, 15*time.Minute, time.Hour)
	ctx := context.Background()

	oldToken, _, err := engine.GenerateRefreshToken(testClaims())
	require.NoError(t, err)

	const callers = 16
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = engine.RefreshToken(ctx, oldToken)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrTokenRevoked)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestEngine_BlacklistIsIdempotent(t *testing.T) {
	engine := newTestEngine(t, 15*time.Minute, time.Hour)
	ctx := context.Background()

	tokenStr, _, err := engine.GenerateRefreshToken(testClaims())
	require.NoError(t, err)

	require.NoError(t, engine.BlacklistToken(ctx, tokenStr, KindRefresh, "logout"))
	require.NoError(t, engine.BlacklistToken(ctx, tokenStr, KindRefresh, "logout"))

	_, err = engine.VerifyRefreshToken(ctx, tokenStr)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestEngine_BlacklistedAccessTokenRejected(t *testing.T) {
	engine := newTestEngine(t, 15*time.Minute, time.Hour)
	ctx := context.Background()

	tokenStr, _, err := engine.GenerateAccessToken(testClaims())
	require.NoError(t, err)

	_, err = engine.VerifyAccessToken(ctx, tokenStr)
	require.NoError(t, err)

	require.NoError(t, engine.BlacklistToken(ctx, tokenStr, KindAccess, "logout"))

	// Still cryptographically valid, but the blacklist wins.
	_, err = engine.VerifyAccessToken(ctx, tokenStr)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestEngine_BlacklistExpiredTokenIsNoop(t *testing.T) {
	engine := newTestEngine(t, time.Hour, -time.Second)
	ctx := context.Background()

	tokenStr, _, err := engine.GenerateRefreshToken(testClaims())
	require.NoError(t, err)

	require.NoError(t, engine.BlacklistToken(ctx, tokenStr, KindRefresh, "logout"))
}

func TestEngine_CSRFTokensAreUnique(t *testing.T) {
	engine := newTestEngine(t, 15*time.Minute, time.Hour)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		token := engine.GenerateCSRFToken()
		_, dup := seen[token]
		require.False(t, dup)
		seen[token] = struct{}{}
	}
}
