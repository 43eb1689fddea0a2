package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/nkiryanov/guildhall/internal/apperrors"
	"github.com/nkiryanov/guildhall/internal/handlers/render"
	"github.com/nkiryanov/guildhall/internal/handlers/userctx"
	"github.com/nkiryanov/guildhall/internal/models"
)

type authService interface {
	// Access token from request. apperrors.ErrNoToken if there is none
	GetAccessString(r *http.Request) (string, error)

	// Verify token and load its user
	Authenticate(ctx context.Context, access string) (models.User, error)
}

type errorLogger interface {
	Error(msg string, args ...any)
}

type Auth struct {
	auth   authService
	logger errorLogger
}

func NewAuth(as authService, l errorLogger) *Auth {
	return &Auth{auth: as, logger: l}
}

// Reject request unless it carries valid access token of active user
func (a *Auth) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access, err := a.auth.GetAccessString(r)
		if err != nil {
			render.ServiceError(w, "Not authorized, no token", http.StatusUnauthorized)
			return
		}

		user, err := a.auth.Authenticate(r.Context(), access)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrTokenExpired):
			render.ServiceError(w, "Token expired", http.StatusUnauthorized, render.WithExpired())
			return
		case errors.Is(err, apperrors.ErrTokenInvalid), errors.Is(err, apperrors.ErrTokenRevoked):
			render.ServiceError(w, "Not authorized, token failed", http.StatusUnauthorized)
			return
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusUnauthorized)
			return
		case errors.Is(err, apperrors.ErrUserInactive):
			render.ServiceError(w, "User account is deactivated", http.StatusUnauthorized)
			return
		default:
			a.logger.Error("failed to authenticate request", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		noteUser(r.Context(), user.ID)
		next.ServeHTTP(w, r.WithContext(userctx.New(r.Context(), user)))
	})
}

// Attach user if request is authenticated, continue as anonymous otherwise
func (a *Auth) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access, err := a.auth.GetAccessString(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.auth.Authenticate(r.Context(), access)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		noteUser(r.Context(), user.ID)
		next.ServeHTTP(w, r.WithContext(userctx.New(r.Context(), user)))
	})
}
