package handler

import "time"

type registerRequest struct {
	Email     string `json:"email"      validate:"required,email"`
	Password  string `json:"password"   validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name"  validate:"required"`
}

type loginRequest struct {
	Email      string     `json:"email"    validate:"required,email"`
	Password   string     `json:"password" validate:"required"`
	RememberMe bool       `json:"remember_me"`
	TabID      string     `json:"tab_id"`
	Device     deviceInfo `json:"device"`
}

type deviceInfo struct {
	UserAgent        string `json:"user_agent"`
	Browser          string `json:"browser"`
	OS               string `json:"os"`
	DeviceType       string `json:"device_type"`
	Platform         string `json:"platform"`
	ScreenResolution string `json:"screen_resolution"`
	Timezone         string `json:"timezone"`
	Language         string `json:"language"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password"     validate:"required,min=8"`
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

type loginResponse struct {
	User             userResponse `json:"user"`
	SessionID        string       `json:"session_id"`
	DeviceID         string       `json:"device_id"`
	CSRFToken        string       `json:"csrf_token"`
	AccessExpiresIn  int64        `json:"access_expires_in"`
	RefreshExpiresIn int64        `json:"refresh_expires_in"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessExpiresIn  int64  `json:"access_expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	CSRFToken        string `json:"csrf_token"`
}

type sessionResponse struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"device_id"`
	Status       string    `json:"status"`
	IsCurrent    bool      `json:"is_current"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

type deviceResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Browser    string    `json:"browser"`
	OS         string    `json:"os"`
	DeviceType string    `json:"device_type"`
	TrustScore int       `json:"trust_score"`
	IsVerified bool      `json:"is_verified"`
	LastActive time.Time `json:"last_active"`
}

type timeoutResponse struct {
	SessionID                string `json:"session_id"`
	IdleTime                 int64  `json:"idle_time"`
	IdleTimeout              int64  `json:"idle_timeout"`
	ExpiresIn                int64  `json:"expires_in"`
	IsApproachingIdleTimeout bool   `json:"is_approaching_idle_timeout"`
}

type countResponse struct {
	Count int64 `json:"count"`
}
