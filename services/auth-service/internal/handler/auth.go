package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/config"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/model"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/usecase"
	"github.com/TheSpideX/supporthub-api/shared/validate"
)

// AuthHandler exposes the authentication workflows over HTTP. Tokens travel
// in cookies; responses carry metadata only.
type AuthHandler struct {
	auth      usecase.AuthUsecase
	sessions  usecase.SessionUsecase
	devices   usecase.DeviceUsecase
	validator *validate.Validator
	cookies   config.CookieConfig
	logger    *zerolog.Logger
}

func NewAuthHandler(
	auth usecase.AuthUsecase,
	sessions usecase.SessionUsecase,
	devices usecase.DeviceUsecase,
	validator *validate.Validator,
	cookies config.CookieConfig,
	logger *zerolog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:      auth,
		sessions:  sessions,
		devices:   devices,
		validator: validator,
		cookies:   cookies,
		logger:    logger,
	}
}

// Routes mounts the auth endpoints on a chi router.
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Post("/refresh", h.Refresh)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/logout-all", h.LogoutAll)
		r.Get("/me", h.Me)
		r.Post("/password", h.ChangePassword)
		r.Get("/sessions", h.ListSessions)
		r.Post("/sessions/end-others", h.EndOtherSessions)
		r.Get("/devices", h.ListDevices)
		r.Get("/session/timeout", h.SessionTimeout)
	})

	return r
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields := h.validator.Struct(req); fields != nil {
		writeValidationErrors(w, fields)
		return
	}

	user, err := h.auth.Register(r.Context(), usecase.RegisterParams{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrUserAlreadyExists) {
			writeError(w, http.StatusConflict, "an account with this email already exists")
			return
		}
		h.logger.Error().Err(err).Msg("failed to register user")
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields := h.validator.Struct(req); fields != nil {
		writeValidationErrors(w, fields)
		return
	}

	device := usecase.DeviceInfo{
		UserAgent:        req.Device.UserAgent,
		Browser:          req.Device.Browser,
		OS:               req.Device.OS,
		DeviceType:       req.Device.DeviceType,
		Platform:         req.Device.Platform,
		ScreenResolution: req.Device.ScreenResolution,
		Timezone:         req.Device.Timezone,
		Language:         req.Device.Language,
		IPAddress:        clientIP(r),
	}
	if device.UserAgent == "" {
		device.UserAgent = r.UserAgent()
	}

	result, err := h.auth.Login(r.Context(), usecase.LoginParams{
		Email:      req.Email,
		Password:   req.Password,
		Device:     device,
		RememberMe: req.RememberMe,
		TabID:      req.TabID,
	}, newCookieWriter(w, h.cookies))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid email or password")
		case errors.Is(err, usecase.ErrAccountLocked), errors.Is(err, usecase.ErrTooManyAttempts):
			writeError(w, http.StatusTooManyRequests, "account temporarily locked, try again later")
		default:
			h.logger.Error().Err(err).Msg("failed to log in user")
			writeError(w, http.StatusInternalServerError, "something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		User:             toUserResponse(result.User),
		SessionID:        result.Session.ID.Hex(),
		DeviceID:         result.Device.ID.Hex(),
		CSRFToken:        result.Tokens.CSRFToken,
		AccessExpiresIn:  result.Tokens.AccessExpiresIn,
		RefreshExpiresIn: result.Tokens.RefreshExpiresIn,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sink := newCookieWriter(w, h.cookies)

	accessToken := h.accessTokenFromRequest(r)
	if accessToken == "" {
		// No identity to terminate; still clear whatever cookies remain.
		sink.ClearAuthCookies()
		writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
		return
	}

	_, claims, err := h.auth.GetUserFromToken(r.Context(), accessToken)
	if err != nil {
		sink.ClearAuthCookies()
		writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
		return
	}

	err = h.auth.Logout(r.Context(), usecase.LogoutParams{
		SessionID:   claims.SessionID,
		CSRFToken:   r.Header.Get("X-CSRF-Token"),
		AccessToken: accessToken,
	}, sink)
	if err != nil {
		if errors.Is(err, usecase.ErrCSRFMismatch) {
			writeError(w, http.StatusForbidden, "csrf token mismatch")
			return
		}
		h.logger.Error().Err(err).Msg("failed to log out user")
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	count, err := h.auth.LogoutAllDevices(r.Context(), user.ID.Hex())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to log out all devices")
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	newCookieWriter(w, h.cookies).ClearAuthCookies()
	writeJSON(w, http.StatusOK, countResponse{Count: count})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	// A tab that rotated over the websocket holds a newer refresh token than
	// the cookie, whose value is already spent. Accept the token in the body
	// so that tab can resynchronize its cookies; everyone else falls back to
	// the cookie.
	var req refreshRequest
	if r.Body != nil {
		_ = json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req)
	}

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		cookie, err := r.Cookie(h.cookies.RefreshTokenName)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "missing refresh token")
			return
		}
		refreshToken = cookie.Value
	}

	tokens, err := h.auth.Refresh(r.Context(), refreshToken, newCookieWriter(w, h.cookies))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		AccessExpiresIn:  tokens.AccessExpiresIn,
		RefreshExpiresIn: tokens.RefreshExpiresIn,
		CSRFToken:        tokens.CSRFToken,
	})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields := h.validator.Struct(req); fields != nil {
		writeValidationErrors(w, fields)
		return
	}

	err := h.auth.ChangePassword(r.Context(), user.ID.Hex(), req.CurrentPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "current password is incorrect")
			return
		}
		h.logger.Error().Err(err).Msg("failed to change password")
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	// Every session was terminated, this one included.
	newCookieWriter(w, h.cookies).ClearAuthCookies()
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	claims, _ := claimsFromContext(r.Context())

	sessions, err := h.sessions.GetUserSessions(r.Context(), user.ID.Hex())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list sessions")
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp := sessionResponse{
			ID:           s.ID.Hex(),
			DeviceID:     s.DeviceID,
			Status:       string(s.Status),
			LastActivity: s.LastActivity,
			ExpiresAt:    s.ExpiresAt,
			CreatedAt:    s.CreatedAt,
		}
		if claims != nil {
			resp.IsCurrent = s.ID.Hex() == claims.SessionID
		}
		out = append(out, resp)
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *AuthHandler) EndOtherSessions(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	count, err := h.sessions.EndAllUserSessionsExceptCurrent(r.Context(), user.ID.Hex(), claims.SessionID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to end other sessions")
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, countResponse{Count: count})
}

func (h *AuthHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	devices, err := h.devices.GetUserDevices(r.Context(), user.ID.Hex())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list devices")
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceResponse{
			ID:         d.ID.Hex(),
			Name:       d.Name,
			Browser:    d.Browser,
			OS:         d.OS,
			DeviceType: d.DeviceType,
			TrustScore: d.TrustScore,
			IsVerified: d.IsVerified,
			LastActive: d.LastActive,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *AuthHandler) SessionTimeout(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	info, err := h.sessions.GetSessionTimeoutInfo(r.Context(), claims.SessionID)
	if err != nil {
		if errors.Is(err, usecase.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error().Err(err).Msg("failed to get session timeout info")
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, timeoutResponse{
		SessionID:                info.SessionID,
		IdleTime:                 int64(info.IdleTime.Seconds()),
		IdleTimeout:              int64(info.IdleTimeout.Seconds()),
		ExpiresIn:                int64(info.ExpiresIn.Seconds()),
		IsApproachingIdleTimeout: info.IsApproachingIdleTimeout,
	})
}

func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:        user.ID.Hex(),
		Email:     user.Email,
		FirstName: user.Profile.FirstName,
		LastName:  user.Profile.LastName,
		Role:      user.Role,
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
