package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/guildhall/internal/apperrors"
	"github.com/nkiryanov/guildhall/internal/handlers/render"
	"github.com/nkiryanov/guildhall/internal/handlers/userctx"
	"github.com/nkiryanov/guildhall/internal/logger"
	"github.com/nkiryanov/guildhall/internal/models"
)

// Tokens are returned in body as well for clients using bearer header instead of cookies
type TokenResponse struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	User         UserResponse `json:"user"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func newTokenResponse(user models.User, pair models.TokenPair) TokenResponse {
	return TokenResponse{
		Token:        pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
		User:         newUserResponse(user),
	}
}

func handleRegister(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required,min=3,max=30,username"`
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,min=6,max=128,password"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, pair, err := authService.Register(r.Context(), data.Username, data.Email, data.Password)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User with this email or username already exists", http.StatusConflict)
			return
		default:
			logger.Error("failed to register user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		authService.SetTokenPairToResponse(w, pair)
		render.JSONWithStatus(w, newTokenResponse(user, pair), http.StatusCreated)
	})
}

func handleLogin(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, pair, err := authService.Login(r.Context(), data.Email, data.Password)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
			return
		case errors.Is(err, apperrors.ErrUserInactive):
			render.ServiceError(w, "Account is deactivated", http.StatusUnauthorized)
			return
		default:
			logger.Error("failed to login user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		authService.SetTokenPairToResponse(w, pair)
		render.JSON(w, newTokenResponse(user, pair))
	})
}

// New access token by refresh cookie. Refresh token is left as is
func handleRefresh(authService authService, logger logger.Logger) http.Handler {
	type response struct {
		Token   string `json:"token"`
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := authService.GetRefreshString(r)
		if err != nil {
			render.ServiceError(w, "No refresh token provided", http.StatusUnauthorized)
			return
		}

		access, err := authService.Refresh(r.Context(), refresh)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrTokenExpired):
			authService.ClearTokens(w)
			render.ServiceError(w, "Refresh token expired, please login again", http.StatusUnauthorized, render.WithRequiresLogin())
			return
		case errors.Is(err, apperrors.ErrTokenInvalid),
			errors.Is(err, apperrors.ErrTokenRevoked),
			errors.Is(err, apperrors.ErrUserNotFound),
			errors.Is(err, apperrors.ErrUserInactive):
			render.ServiceError(w, "Invalid refresh token", http.StatusUnauthorized)
			return
		default:
			logger.Error("failed to refresh token", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		authService.SetAccessToResponse(w, access)
		render.JSON(w, response{Token: access.Value, Message: "Token refreshed successfully"})
	})
}

func handleLogout(authService authService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		authService.ClearTokens(w)
		render.JSON(w, MessageResponse{Message: "Logged out successfully"})
	})
}

// Revoke every token of current user, on every device
func handleLogoutAll(authService authService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if err := authService.RevokeAll(r.Context(), user.ID); err != nil {
			logger.Error("failed to revoke user tokens", "user_id", user.ID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		authService.ClearTokens(w)
		render.JSON(w, MessageResponse{Message: "Logged out from all devices"})
	})
}

func handleSession() http.Handler {
	type response struct {
		Authenticated bool          `json:"authenticated"`
		User          *UserResponse `json:"user,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.JSON(w, response{Authenticated: false})
			return
		}

		u := newUserResponse(user)
		render.JSON(w, response{Authenticated: true, User: &u})
	})
}
