package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/nkiryanov/guildhall/internal/apperrors"
	"github.com/nkiryanov/guildhall/internal/handlers/render"
	"github.com/nkiryanov/guildhall/internal/handlers/userctx"
	"github.com/nkiryanov/guildhall/internal/logger"
	"github.com/nkiryanov/guildhall/internal/models"
	"github.com/nkiryanov/guildhall/internal/repository"
)

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type UserListResponse struct {
	Users      []UserResponse `json:"users"`
	Pagination Pagination     `json:"pagination"`
}

// GET /users?page=1&limit=20&role=moderator&active=true
func handleListUsers(userService userService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		page, err := queryInt(q.Get("page"), 1)
		if err != nil || page < 1 {
			render.ServiceError(w, "Page must be a positive number", http.StatusBadRequest)
			return
		}
		limit, err := queryInt(q.Get("limit"), 0)
		if err != nil || limit < 0 {
			render.ServiceError(w, "Limit must be a positive number", http.StatusBadRequest)
			return
		}

		var filter repository.ListUsersParams
		if role := models.Role(q.Get("role")); role != "" {
			if !role.Valid() {
				render.ServiceError(w, "Unknown role", http.StatusBadRequest)
				return
			}
			filter.Role = role
		}
		if active := q.Get("active"); active != "" {
			v, err := strconv.ParseBool(active)
			if err != nil {
				render.ServiceError(w, "Active must be true or false", http.StatusBadRequest)
				return
			}
			filter.IsActive = &v
		}

		result, err := userService.ListUsers(r.Context(), filter, page, limit)
		if err != nil {
			logger.Error("failed to list users", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		users := make([]UserResponse, 0, len(result.Users))
		for _, u := range result.Users {
			users = append(users, newUserResponse(u))
		}
		render.JSON(w, UserListResponse{
			Users: users,
			Pagination: Pagination{
				Page:  result.Page,
				Limit: result.Limit,
				Total: result.Total,
				Pages: result.Pages(),
			},
		})
	})
}

func handleSetUserRole(userService userService, logger logger.Logger) http.Handler {
	type request struct {
		Role models.Role `json:"role" validate:"required,oneof=user moderator admin"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "User not found", http.StatusNotFound)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := userService.SetRole(r.Context(), admin.ID, id, data.Role)
		switch {
		case err == nil:
			logger.Info("user role changed", "admin_id", admin.ID, "user_id", id, "role", data.Role)
			render.JSON(w, newUserResponse(user))
		case errors.Is(err, apperrors.ErrSelfAction):
			render.ServiceError(w, "Cannot change your own role", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrInvalidRole):
			render.ServiceError(w, "Unknown role", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			logger.Error("failed to change user role", "user_id", id, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// Admin "delete" keeps the record, account is deactivated
func handleDeactivateUser(userService userService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "User not found", http.StatusNotFound)
			return
		}

		_, err = userService.DeactivateUser(r.Context(), admin.ID, id)
		switch {
		case err == nil:
			logger.Info("user deactivated by admin", "admin_id", admin.ID, "user_id", id)
			render.JSON(w, MessageResponse{Message: "User account deleted successfully"})
		case errors.Is(err, apperrors.ErrSelfAction):
			render.ServiceError(w, "Cannot delete your own admin account", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			logger.Error("failed to deactivate user", "user_id", id, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func queryInt(v string, fallback int) (int, error) {
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
