package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/guildhall/internal/apperrors"
	"github.com/nkiryanov/guildhall/internal/logger"
	"github.com/nkiryanov/guildhall/internal/models"
	"github.com/nkiryanov/guildhall/internal/service/auth/tokenmanager"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type userService interface {
	CreateUser(ctx context.Context, username string, email string, password string) (models.User, error)

	// Must return apperrors.ErrInvalidCredentials on unknown email or wrong password
	// and apperrors.ErrUserInactive for deactivated user
	CheckCredentials(ctx context.Context, email string, password string) (models.User, error)

	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	TouchLastActive(ctx context.Context, userID uuid.UUID) error
	RecordLogin(ctx context.Context, userID uuid.UUID) (models.User, error)
	RevokeTokens(ctx context.Context, userID uuid.UUID) (int, error)
}

type Config struct {
	// Set 'Secure' attribute on auth cookies. Has to be true in production
	SecureCookies bool

	// NoOp logger if not set
	Logger logger.Logger
}

type AuthService struct {
	tokens *tokenmanager.TokenManager
	users  userService
	secure bool
	logger logger.Logger
}

func NewService(cfg Config, tokens *tokenmanager.TokenManager, users userService) (*AuthService, error) {
	if tokens == nil || users == nil {
		return nil, errors.New("token manager and user service must not be nil")
	}

	l := cfg.Logger
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &AuthService{
		tokens: tokens,
		users:  users,
		secure: cfg.SecureCookies,
		logger: l,
	}, nil
}

// Register user and issue token pair for him
// Has to return apperrors.ErrUserAlreadyExists if username or email is taken
func (s *AuthService) Register(ctx context.Context, username string, email string, password string) (models.User, models.TokenPair, error) {
	user, err := s.users.CreateUser(ctx, username, email, password)
	if err != nil {
		return user, models.TokenPair{}, err
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return user, pair, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return user, pair, nil
}

// Login user by email and password
// Records login in user stats, failure to record doesn't fail login
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error) {
	user, err := s.users.CheckCredentials(ctx, email, password)
	if err != nil {
		return user, models.TokenPair{}, err
	}

	recorded, err := s.users.RecordLogin(ctx, user.ID)
	switch err {
	case nil:
		user = recorded
	default:
		s.logger.Warn("failed to record user login", "user_id", user.ID, "error", err)
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return user, pair, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return user, pair, nil
}

// Authenticate user by access token
// Errors: apperrors.ErrTokenExpired, ErrTokenInvalid, ErrTokenRevoked, ErrUserNotFound, ErrUserInactive.
// Anything else is unexpected
func (s *AuthService) Authenticate(ctx context.Context, access string) (models.User, error) {
	claims, err := s.tokens.ParseAccess(access)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.activeUser(ctx, claims)
	if err != nil {
		return user, err
	}

	// Last activity is advisory, never fail request because of it
	if err := s.users.TouchLastActive(ctx, user.ID); err != nil {
		s.logger.Warn("failed to update user last activity", "user_id", user.ID, "error", err)
	}

	return user, nil
}

// Issue new access token by refresh token. Refresh token itself is not rotated
// Errors are the same as for Authenticate
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.IssuedToken, error) {
	claims, err := s.tokens.ParseRefresh(refresh)
	if err != nil {
		return models.IssuedToken{}, err
	}

	user, err := s.activeUser(ctx, claims)
	if err != nil {
		return models.IssuedToken{}, err
	}

	access, err := s.tokens.IssueAccess(user)
	if err != nil {
		return access, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return access, nil
}

// Revoke every token issued for the user so far
func (s *AuthService) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	_, err := s.users.RevokeTokens(ctx, userID)
	return err
}

func (s *AuthService) activeUser(ctx context.Context, claims tokenmanager.Claims) (models.User, error) {
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return user, err
	}

	if !user.IsActive {
		return user, apperrors.ErrUserInactive
	}

	if claims.Version != user.TokenVersion {
		return user, apperrors.ErrTokenRevoked
	}

	return user, nil
}
