// ABOUTME: Bearer-token header construction for the session dial.
// ABOUTME: Inspects JWT expiry so an expired token is flagged before the dial fails opaquely.

package session

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// authHeader builds the HTTP header carried on the WebSocket dial.
func (m *Manager) authHeader() http.Header {
	header := make(http.Header)
	if m.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+m.cfg.Token)
	}
	return header
}

// warnIfTokenExpired logs a warning when the configured token is a JWT whose
// expiry has passed. The signature is not verified, only the server can do
// that; this is purely to make the eventual 401 diagnosable.
func warnIfTokenExpired(logger *slog.Logger, token string) {
	if token == "" {
		return
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		// Not a JWT (opaque token), nothing to inspect.
		return
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}

	if exp.Before(time.Now()) {
		logger.Warn("auth token is expired, dial will likely be rejected",
			"expired_at", exp.Time.Format(time.RFC3339))
	}
}
