package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/guildhall/internal/handlers/middleware"
	"github.com/nkiryanov/guildhall/internal/logger"
	"github.com/nkiryanov/guildhall/internal/models"
	"github.com/nkiryanov/guildhall/internal/ratelimit"
	"github.com/nkiryanov/guildhall/internal/repository"
	"github.com/nkiryanov/guildhall/internal/service/user"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// Request limits applied by router
type Limits struct {
	// Counter storage for per user limit. In-memory store is used if nil
	Store       ratelimit.Store
	MaxRequests int64
	Window      time.Duration

	// Login attempts per client IP
	LoginPerMinute int
	LoginBurst     int
}

func (l Limits) withDefaults() Limits {
	if l.Store == nil {
		l.Store = ratelimit.NewMemoryStore()
	}
	if l.MaxRequests <= 0 {
		l.MaxRequests = 100
	}
	if l.Window <= 0 {
		l.Window = 15 * time.Minute
	}
	if l.LoginPerMinute <= 0 {
		l.LoginPerMinute = 10
	}
	if l.LoginBurst <= 0 {
		l.LoginBurst = 5
	}
	return l
}

func NewRouter(
	authService authService,
	userService userService,
	limits Limits,
	logger logger.Logger,
) http.Handler {
	limits = limits.withDefaults()

	auth := middleware.NewAuth(authService, logger)
	limit := middleware.RateLimitByUser(limits.Store, limits.MaxRequests, limits.Window, logger)
	throttle := middleware.NewLoginThrottle(limits.LoginPerMinute, limits.LoginBurst)

	// Authenticated user routes are limited per user, so limit goes after auth
	protected := func(h http.Handler, mds ...func(http.Handler) http.Handler) http.Handler {
		return chain(h, append([]func(http.Handler) http.Handler{auth.Protect, limit}, mds...)...)
	}

	api := http.NewServeMux()

	api.Handle("POST /auth/register", chain(handleRegister(authService, logger), limit))
	api.Handle("POST /auth/login", chain(handleLogin(authService, logger), throttle.Middleware, limit))
	api.Handle("POST /auth/refresh", handleRefresh(authService, logger))
	api.Handle("POST /auth/logout", handleLogout(authService))
	api.Handle("POST /auth/logout-all", protected(handleLogoutAll(authService, logger)))
	api.Handle("GET /auth/session", auth.OptionalAuth(handleSession()))

	api.Handle("GET /auth/me", protected(handleMe()))
	api.Handle("PUT /auth/me", protected(handleUpdateMe(userService, logger)))
	api.Handle("DELETE /auth/me", protected(handleDeleteMe(authService, userService, logger)))

	api.Handle("GET /users/{id}", protected(
		handleGetUser(),
		middleware.LoadResource(loadUserResource(userService), logger),
		middleware.CheckOwnership("id"),
	))

	// Administration
	adminOnly := middleware.Authorize(models.RoleAdmin)
	api.Handle("PATCH /users/{id}/status", protected(handleSetUserStatus(userService, logger), adminOnly))
	api.Handle("GET /users", protected(handleListUsers(userService, logger), adminOnly))
	api.Handle("PUT /users/{id}/role", protected(handleSetUserRole(userService, logger), adminOnly))
	api.Handle("DELETE /users/{id}", protected(handleDeactivateUser(userService, logger), adminOnly))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	handler := chain(root,
		middleware.AccessLog(logger),
	)

	return handler
}

type authService interface {
	// Register user and issue tokens
	// Has to return apperrors.ErrUserAlreadyExists if username or email taken
	Register(ctx context.Context, username string, email string, password string) (models.User, models.TokenPair, error)

	// Login user with email and password
	// Has to return apperrors.ErrInvalidCredentials or apperrors.ErrUserInactive
	Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error)

	// New access token by refresh token
	// If token expired: has to return apperrors.ErrTokenExpired
	Refresh(ctx context.Context, refresh string) (models.IssuedToken, error)

	// Revoke every token issued for the user
	RevokeAll(ctx context.Context, userID uuid.UUID) error

	Authenticate(ctx context.Context, access string) (models.User, error)

	// Cookies
	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)
	SetAccessToResponse(w http.ResponseWriter, access models.IssuedToken)
	ClearTokens(w http.ResponseWriter)

	GetAccessString(r *http.Request) (string, error)
	GetRefreshString(r *http.Request) (string, error)
}

type userService interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, params repository.UpdateProfileParams) (models.User, error)
	SetActive(ctx context.Context, userID uuid.UUID, active bool) (models.User, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error

	// Admin actions, actor can't apply them to itself: apperrors.ErrSelfAction
	SetRole(ctx context.Context, actorID uuid.UUID, userID uuid.UUID, role models.Role) (models.User, error)
	DeactivateUser(ctx context.Context, actorID uuid.UUID, userID uuid.UUID) (models.User, error)
	ListUsers(ctx context.Context, filter repository.ListUsersParams, page int, limit int) (user.ListUsersPage, error)
}
