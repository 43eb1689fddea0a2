package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/guildhall/internal/apperrors"
	"github.com/nkiryanov/guildhall/internal/handlers/userctx"
	"github.com/nkiryanov/guildhall/internal/logger"
	"github.com/nkiryanov/guildhall/internal/models"
)

// Allow to use a function as auth service
// Token is read from 'Authorization: Bearer' header only
type authFunc func(ctx context.Context, access string) (models.User, error)

func (f authFunc) GetAccessString(r *http.Request) (string, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return "", apperrors.ErrNoToken
	}
	return token, nil
}

func (f authFunc) Authenticate(ctx context.Context, access string) (models.User, error) {
	return f(ctx, access)
}

func doRequest(t *testing.T, h http.Handler, token string) (*http.Response, string) {
	t.Helper()

	srv := httptest.NewServer(h)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/test", nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "should make request to test server")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "should read response body")
	defer resp.Body.Close() // nolint:errcheck

	return resp, string(body)
}

func TestAuthMiddleware_Protect(t *testing.T) {
	// Simple handler that try to get user from context
	// If ok write it username to response
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Must always be true cause middleware has to set user to response or write error to response
		user, ok := userctx.FromContext(r.Context())
		require.True(t, ok)

		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(user.Username))
		require.NoError(t, err, "should write username to response")
	})

	t.Run("auth ok", func(t *testing.T) {
		middleware := NewAuth(authFunc(func(_ context.Context, access string) (models.User, error) {
			require.Equal(t, "good-token", access)
			return models.User{Username: "test-user"}, nil
		}), logger.NewNoOpLogger())

		resp, body := doRequest(t, middleware.Protect(handler), "good-token")

		require.Equalf(t, http.StatusOK, resp.StatusCode, "should return status OK. Resp: %s", body)
		require.Equal(t, "test-user", body, "should return username in response")
	})

	t.Run("access log sees authenticated user", func(t *testing.T) {
		id := uuid.New()
		rec := &infoRecorder{}
		auth := NewAuth(authFunc(func(context.Context, string) (models.User, error) {
			return models.User{ID: id, Username: "test-user"}, nil
		}), logger.NewNoOpLogger())

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		w := httptest.NewRecorder()
		AccessLog(rec)(auth.Protect(handler)).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, rec.args, 1)
		require.Equal(t, id.String(), fields(rec.args[0])["user_id"])
	})

	t.Run("no token", func(t *testing.T) {
		middleware := NewAuth(authFunc(func(context.Context, string) (models.User, error) {
			t.Error("should not try to authenticate without token")
			return models.User{}, nil
		}), logger.NewNoOpLogger())

		resp, body := doRequest(t, middleware.Protect(handler), "")

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.JSONEq(t, `{"error": "service_error", "message": "Not authorized, no token"}`, body)
	})

	tests := []struct {
		name     string
		err      error
		code     int
		expected string
	}{
		{
			name:     "expired token",
			err:      apperrors.ErrTokenExpired,
			code:     http.StatusUnauthorized,
			expected: `{"error": "service_error", "message": "Token expired", "expired": true}`,
		},
		{
			name:     "invalid token",
			err:      apperrors.ErrTokenInvalid,
			code:     http.StatusUnauthorized,
			expected: `{"error": "service_error", "message": "Not authorized, token failed"}`,
		},
		{
			name:     "revoked token",
			err:      apperrors.ErrTokenRevoked,
			code:     http.StatusUnauthorized,
			expected: `{"error": "service_error", "message": "Not authorized, token failed"}`,
		},
		{
			name:     "user not found",
			err:      apperrors.ErrUserNotFound,
			code:     http.StatusUnauthorized,
			expected: `{"error": "service_error", "message": "User not found"}`,
		},
		{
			name:     "user inactive",
			err:      apperrors.ErrUserInactive,
			code:     http.StatusUnauthorized,
			expected: `{"error": "service_error", "message": "User account is deactivated"}`,
		},
		{
			name:     "unexpected error is not auth failure",
			err:      errors.New("connection refused"),
			code:     http.StatusInternalServerError,
			expected: `{"error": "service_error", "message": "Internal server error"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			middleware := NewAuth(authFunc(func(context.Context, string) (models.User, error) {
				return models.User{}, tc.err
			}), logger.NewNoOpLogger())

			resp, body := doRequest(t, middleware.Protect(handler), "some-token")

			require.Equalf(t, tc.code, resp.StatusCode, "unexpected status. Resp: %s", body)
			require.JSONEq(t, tc.expected, body)
		})
	}
}

func TestAuthMiddleware_OptionalAuth(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(user.Username))
	})

	tests := []struct {
		name     string
		token    string
		user     models.User
		err      error
		expected string
	}{
		{name: "authenticated", token: "good", user: models.User{Username: "nk"}, expected: "nk"},
		{name: "no token", token: "", expected: "anonymous"},
		{name: "expired", token: "old", err: apperrors.ErrTokenExpired, expected: "anonymous"},
		{name: "inactive", token: "good", err: apperrors.ErrUserInactive, expected: "anonymous"},
		{name: "unexpected error", token: "good", err: errors.New("db is down"), expected: "anonymous"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			middleware := NewAuth(authFunc(func(context.Context, string) (models.User, error) {
				return tc.user, tc.err
			}), logger.NewNoOpLogger())

			resp, body := doRequest(t, middleware.OptionalAuth(handler), tc.token)

			require.Equal(t, http.StatusOK, resp.StatusCode, "optional auth never rejects request")
			require.Equal(t, tc.expected, body)
		})
	}
}
