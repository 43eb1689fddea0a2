package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/nkiryanov/guildhall/internal/apperrors"
	"github.com/nkiryanov/guildhall/internal/models"
)

const (
	AccessCookieName  = "accessToken"
	RefreshCookieName = "refreshToken"
)

// Set both tokens as HttpOnly cookies
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	http.SetCookie(w, s.cookie(AccessCookieName, pair.Access.Value, s.tokens.AccessTTL()))
	http.SetCookie(w, s.cookie(RefreshCookieName, pair.Refresh.Value, s.tokens.RefreshTTL()))
}

// Reset access cookie only, refresh cookie is left untouched
func (s *AuthService) SetAccessToResponse(w http.ResponseWriter, access models.IssuedToken) {
	http.SetCookie(w, s.cookie(AccessCookieName, access.Value, s.tokens.AccessTTL()))
}

// Expire both auth cookies
func (s *AuthService) ClearTokens(w http.ResponseWriter) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		c := s.cookie(name, "", 0)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

// Access token from 'Authorization: Bearer' header or, failing that, from access cookie
// Returns apperrors.ErrNoToken if neither present
func (s *AuthService) GetAccessString(r *http.Request) (string, error) {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if token = strings.TrimSpace(token); token != "" {
			return token, nil
		}
	}

	return cookieValue(r, AccessCookieName)
}

// Refresh token is read from it's cookie only, never from headers
func (s *AuthService) GetRefreshString(r *http.Request) (string, error) {
	return cookieValue(r, RefreshCookieName)
}

func (s *AuthService) cookie(name string, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func cookieValue(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", apperrors.ErrNoToken
	}
	return c.Value, nil
}
