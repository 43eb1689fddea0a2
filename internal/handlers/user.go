package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/guildhall/internal/apperrors"
	"github.com/nkiryanov/guildhall/internal/handlers/render"
	"github.com/nkiryanov/guildhall/internal/handlers/resourcectx"
	"github.com/nkiryanov/guildhall/internal/handlers/userctx"
	"github.com/nkiryanov/guildhall/internal/logger"
	"github.com/nkiryanov/guildhall/internal/models"
	"github.com/nkiryanov/guildhall/internal/repository"
)

// Public view of user, password hash and token version never leave the server
type UserResponse struct {
	ID         uuid.UUID   `json:"id"`
	Username   string      `json:"username"`
	Email      string      `json:"email"`
	Role       models.Role `json:"role"`
	Avatar     string      `json:"avatar"`
	Bio        string      `json:"bio"`
	IsActive   bool        `json:"isActive"`
	LastActive time.Time   `json:"lastActive"`
	LoginCount int         `json:"loginCount"`
	CreatedAt  time.Time   `json:"createdAt"`
}

func newUserResponse(u models.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.Role,
		Avatar:     u.Avatar,
		Bio:        u.Bio,
		IsActive:   u.IsActive,
		LastActive: u.LastActiveAt,
		LoginCount: u.LoginCount,
		CreatedAt:  u.CreatedAt,
	}
}

func handleMe() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		render.JSON(w, newUserResponse(user))
	})
}

func handleUpdateMe(userService userService, logger logger.Logger) http.Handler {
	type request struct {
		Username *string `json:"username" validate:"omitempty,min=3,max=30,username"`
		Avatar   *string `json:"avatar" validate:"omitempty,url,max=500"`
		Bio      *string `json:"bio" validate:"omitempty,max=500"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		updated, err := userService.UpdateProfile(r.Context(), user.ID, repository.UpdateProfileParams{
			Username: data.Username,
			Avatar:   data.Avatar,
			Bio:      data.Bio,
		})
		switch {
		case err == nil:
			render.JSON(w, newUserResponse(updated))
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "Username already taken", http.StatusConflict)
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			logger.Error("failed to update profile", "user_id", user.ID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleDeleteMe(authService authService, userService userService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		err := userService.DeleteUser(r.Context(), user.ID)
		if err != nil && !errors.Is(err, apperrors.ErrUserNotFound) {
			logger.Error("failed to delete user", "user_id", user.ID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		authService.ClearTokens(w)
		render.JSON(w, MessageResponse{Message: "Account deleted successfully"})
	})
}

// Load user from {id} path value as resource for ownership check
func loadUserResource(userService userService) func(r *http.Request) (resourcectx.Resource, error) {
	return func(r *http.Request) (resourcectx.Resource, error) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			return nil, apperrors.ErrUserNotFound
		}

		user, err := userService.GetUserByID(r.Context(), id)
		if err != nil {
			return nil, err
		}

		return toResource(newUserResponse(user))
	}
}

// Resource is the same JSON the client gets
func toResource(v any) (resourcectx.Resource, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("can't convert to resource: %w", err)
	}

	var res resourcectx.Resource
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("can't convert to resource: %w", err)
	}
	return res, nil
}

func handleGetUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := resourcectx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		render.JSON(w, res)
	})
}

// Soft delete or restore user. Admins only
func handleSetUserStatus(userService userService, logger logger.Logger) http.Handler {
	type request struct {
		IsActive *bool `json:"isActive" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "User not found", http.StatusNotFound)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := userService.SetActive(r.Context(), id, *data.IsActive)
		switch {
		case err == nil:
			render.JSON(w, newUserResponse(user))
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			logger.Error("failed to change user status", "user_id", id, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
