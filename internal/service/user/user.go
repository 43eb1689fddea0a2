package user

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/guildhall/internal/apperrors"
	"github.com/nkiryanov/guildhall/internal/models"
	"github.com/nkiryanov/guildhall/internal/repository"
	"github.com/nkiryanov/guildhall/internal/service/auth"
)

const avatarURL = "https://api.dicebear.com/7.x/avataaars/svg?seed="

type UserService struct {
	hasher   auth.PasswordHasher
	userRepo repository.UserRepo
	now      func() time.Time

	// Hash compared against when email is unknown, so both login failures take the same time
	dummyHash func() (string, error)
}

func NewService(hasher auth.PasswordHasher, userRepo repository.UserRepo) *UserService {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}

	return &UserService{
		hasher:   hasher,
		userRepo: userRepo,
		now:      time.Now,
		dummyHash: sync.OnceValues(func() (string, error) {
			return hasher.Hash("not-a-real-password")
		}),
	}
}

func DefaultAvatar(username string) string {
	return avatarURL + url.QueryEscape(username)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) CreateUser(ctx context.Context, username string, email string, password string) (models.User, error) {
	var user models.User
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	user, err = s.userRepo.CreateUser(ctx, repository.CreateUserParams{
		Username:       strings.TrimSpace(username),
		Email:          NormalizeEmail(email),
		HashedPassword: hash,
		Role:           models.RoleUser,
		Avatar:         DefaultAvatar(username),
	})
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

func (s *UserService) CheckCredentials(ctx context.Context, email string, password string) (models.User, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, NormalizeEmail(email))

	switch {
	case err == nil:
		if s.hasher.Compare(user.HashedPassword, password) != nil {
			return models.User{}, apperrors.ErrInvalidCredentials
		}
	case errors.Is(err, apperrors.ErrUserNotFound):
		if hash, hashErr := s.dummyHash(); hashErr == nil {
			_ = s.hasher.Compare(hash, password)
		}
		return models.User{}, apperrors.ErrInvalidCredentials
	default:
		return models.User{}, err
	}

	if !user.IsActive {
		return user, apperrors.ErrUserInactive
	}

	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.userRepo.GetUserByID(ctx, userID)
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, params repository.UpdateProfileParams) (models.User, error) {
	if params.Username != nil {
		trimmed := strings.TrimSpace(*params.Username)
		params.Username = &trimmed
	}

	user, err := s.userRepo.UpdateProfile(ctx, userID, params)
	if err != nil {
		return user, fmt.Errorf("can't update profile. Err: %w", err)
	}
	return user, nil
}

// Soft delete (or restore) user. Deactivated user can't login or use issued tokens
func (s *UserService) SetActive(ctx context.Context, userID uuid.UUID, active bool) (models.User, error) {
	return s.userRepo.SetActive(ctx, userID, active)
}

// Change user role. Own role can't be changed
func (s *UserService) SetRole(ctx context.Context, actorID uuid.UUID, userID uuid.UUID, role models.Role) (models.User, error) {
	if !role.Valid() {
		return models.User{}, apperrors.ErrInvalidRole
	}
	if actorID == userID {
		return models.User{}, apperrors.ErrSelfAction
	}
	return s.userRepo.SetRole(ctx, userID, role)
}

// Deactivate account on behalf of admin. Own account can't be deactivated this way
func (s *UserService) DeactivateUser(ctx context.Context, actorID uuid.UUID, userID uuid.UUID) (models.User, error) {
	if actorID == userID {
		return models.User{}, apperrors.ErrSelfAction
	}
	return s.userRepo.SetActive(ctx, userID, false)
}

type ListUsersPage struct {
	Users []models.User
	Total int
	Page  int
	Limit int
}

func (p ListUsersPage) Pages() int {
	if p.Limit == 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page is 1-based. Out of range page and limit are clamped
func (s *UserService) ListUsers(ctx context.Context, filter repository.ListUsersParams, page int, limit int) (ListUsersPage, error) {
	page = max(page, 1)
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	limit = min(limit, MaxPageLimit)

	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	users, total, err := s.userRepo.ListUsers(ctx, filter)
	if err != nil {
		return ListUsersPage{}, fmt.Errorf("can't list users. Err: %w", err)
	}

	return ListUsersPage{Users: users, Total: total, Page: page, Limit: limit}, nil
}

func (s *UserService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	return s.userRepo.DeleteUser(ctx, userID)
}

func (s *UserService) TouchLastActive(ctx context.Context, userID uuid.UUID) error {
	return s.userRepo.TouchLastActive(ctx, userID, s.now())
}

// Increment login counter and return fresh user
func (s *UserService) RecordLogin(ctx context.Context, userID uuid.UUID) (models.User, error) {
	if err := s.userRepo.RecordLogin(ctx, userID, s.now()); err != nil {
		return models.User{}, err
	}
	return s.userRepo.GetUserByID(ctx, userID)
}

func (s *UserService) RevokeTokens(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.userRepo.BumpTokenVersion(ctx, userID)
}
