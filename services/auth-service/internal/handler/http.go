package handler

import (
	"encoding/json"
	"net/http"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/config"
	authtypes "github.com/TheSpideX/supporthub-api/services/auth-service/pkg/types"
)

const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeValidationErrors(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":  "validation failed",
		"fields": fields,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// cookieWriter implements usecase.CookieWriter over one HTTP response. The
// access and refresh cookies are HttpOnly; the CSRF cookie is readable by the
// client so it can be echoed back in a header.
type cookieWriter struct {
	w   http.ResponseWriter
	cfg config.CookieConfig
}

func newCookieWriter(w http.ResponseWriter, cfg config.CookieConfig) *cookieWriter {
	return &cookieWriter{w: w, cfg: cfg}
}

func (c *cookieWriter) SetAuthCookies(tokens *authtypes.Tokens) {
	http.SetCookie(c.w, &http.Cookie{
		Name:     c.cfg.AccessTokenName,
		Value:    tokens.AccessToken,
		Path:     "/",
		Domain:   c.cfg.Domain,
		MaxAge:   int(tokens.AccessExpiresIn),
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(c.w, &http.Cookie{
		Name:     c.cfg.RefreshTokenName,
		Value:    tokens.RefreshToken,
		Path:     "/",
		Domain:   c.cfg.Domain,
		MaxAge:   int(tokens.RefreshExpiresIn),
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(c.w, &http.Cookie{
		Name:     c.cfg.CSRFTokenName,
		Value:    tokens.CSRFToken,
		Path:     "/",
		Domain:   c.cfg.Domain,
		MaxAge:   int(tokens.RefreshExpiresIn),
		Secure:   c.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c *cookieWriter) ClearAuthCookies() {
	for _, name := range []string{c.cfg.AccessTokenName, c.cfg.RefreshTokenName, c.cfg.CSRFTokenName} {
		http.SetCookie(c.w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   c.cfg.Domain,
			MaxAge:   -1,
			HttpOnly: name != c.cfg.CSRFTokenName,
			Secure:   c.cfg.Secure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
