package types

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims are the claims carried by access and refresh tokens.
// The registered ID field (jti) identifies the token for revocation.
type JWTClaims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	DeviceID  string `json:"did"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens is the triple issued at login and partially rotated on refresh.
// CSRFToken is an opaque session-bound value, not a signed claim.
type Tokens struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	CSRFToken        string `json:"csrf_token"`
	AccessExpiresIn  int64  `json:"access_expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}
