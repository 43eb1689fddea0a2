package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/guildhall/internal/models"
)

type CreateUserParams struct {
	Username       string
	Email          string
	HashedPassword string
	Role           models.Role
	Avatar         string
}

// Nil fields are left unchanged
type UpdateProfileParams struct {
	Username *string
	Avatar   *string
	Bio      *string
}

// Page of users, newest first. Zero Role and nil IsActive mean any
type ListUsersParams struct {
	Role     models.Role
	IsActive *bool
	Limit    int
	Offset   int
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username or email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Update profile fields
	// Has to return apperrors.ErrUserAlreadyExists if new username is taken
	UpdateProfile(ctx context.Context, userID uuid.UUID, params UpdateProfileParams) (models.User, error)

	// Soft delete or restore user
	SetActive(ctx context.Context, userID uuid.UUID, active bool) (models.User, error)

	// Role is expected to be valid already
	SetRole(ctx context.Context, userID uuid.UUID, role models.Role) (models.User, error)

	// Users matching params and total count of matching users
	ListUsers(ctx context.Context, params ListUsersParams) ([]models.User, int, error)

	// Activity tracking. Both must return apperrors.ErrUserNotFound for unknown user
	TouchLastActive(ctx context.Context, userID uuid.UUID, at time.Time) error
	RecordLogin(ctx context.Context, userID uuid.UUID, at time.Time) error

	// Increment token version and return the new one
	BumpTokenVersion(ctx context.Context, userID uuid.UUID) (int, error)

	// Hard delete, used only for explicit account deletion
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

type Storage interface {
	User() UserRepo
}
