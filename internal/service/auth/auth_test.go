package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/guildhall/internal/apperrors"
	"github.com/nkiryanov/guildhall/internal/models"
	"github.com/nkiryanov/guildhall/internal/service/auth"
	"github.com/nkiryanov/guildhall/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/guildhall/internal/service/user"
	"github.com/nkiryanov/guildhall/internal/testutil"
)

type fixture struct {
	s       *auth.AuthService
	storage *testutil.MemoryStorage
	now     time.Time
}

func (f *fixture) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture(t *testing.T, secure bool) *fixture {
	f := &fixture{
		storage: testutil.NewMemoryStorage(),
		now:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	tokens, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		Now:           func() time.Time { return f.now },
	})
	require.NoError(t, err)

	users := user.NewService(auth.BcryptHasher{Cost: bcrypt.MinCost}, f.storage.User())
	f.s, err = auth.NewService(auth.Config{SecureCookies: secure}, tokens, users)
	require.NoError(t, err)

	return f
}

func Test_Auth(t *testing.T) {
	t.Parallel()

	t.Run("new service requires dependencies", func(t *testing.T) {
		_, err := auth.NewService(auth.Config{}, nil, nil)
		require.Error(t, err)
	})

	t.Run("Register", func(t *testing.T) {
		t.Run("new user ok", func(t *testing.T) {
			f := newFixture(t, false)

			u, pair, err := f.s.Register(t.Context(), "nk", "a@b.com", "Passw0rd1")

			require.NoError(t, err)
			require.Equal(t, "nk", u.Username)
			require.NotEmpty(t, pair.Access.Value)
			require.NotEmpty(t, pair.Refresh.Value)
		})

		t.Run("existed user fail", func(t *testing.T) {
			f := newFixture(t, false)
			_, _, err := f.s.Register(t.Context(), "nk", "a@b.com", "Passw0rd1")
			require.NoError(t, err)

			_, _, err = f.s.Register(t.Context(), "nk", "other@b.com", "Passw0rd1")

			require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
		})
	})

	t.Run("Login", func(t *testing.T) {
		t.Run("ok records login", func(t *testing.T) {
			f := newFixture(t, false)
			_, _, err := f.s.Register(t.Context(), "nk", "a@b.com", "Passw0rd1")
			require.NoError(t, err)

			u, pair, err := f.s.Login(t.Context(), "a@b.com", "Passw0rd1")

			require.NoError(t, err)
			require.Equal(t, 1, u.LoginCount, "login should be counted")
			require.NotEmpty(t, pair.Access.Value)

			got, err := f.s.Authenticate(t.Context(), pair.Access.Value)
			require.NoError(t, err)
			require.Equal(t, u.ID, got.ID, "access token should point to logged in user")
		})

		t.Run("wrong password", func(t *testing.T) {
			f := newFixture(t, false)
			_, _, err := f.s.Register(t.Context(), "nk", "a@b.com", "Passw0rd1")
			require.NoError(t, err)

			_, _, err = f.s.Login(t.Context(), "a@b.com", "wrong")

			require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		})
	})

	t.Run("Authenticate", func(t *testing.T) {
		t.Run("expired token", func(t *testing.T) {
			f := newFixture(t, false)
			_, pair, err := f.s.Register(t.Context(), "nk", "a@b.com", "Passw0rd1")
			require.NoError(t, err)

			f.Advance(16 * time.Minute)
			_, err = f.s.Authenticate(t.Context(), pair.Access.Value)

			require.ErrorIs(t, err, apperrors.ErrTokenExpired)
		})

		t.Run("user deleted", func(t *testing.T) {
			f := newFixture(t, false)
			u, pair, err := f.s.Register(t.Context(), "nk", "a@b.com", "Passw0rd1")
			require.NoError(t, err)
			require.NoError(t, f.storage.DeleteUser(t.Context(), u.ID))

			_, err = f.s.Authenticate(t.Context(), pair.Access.Value)

			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})

		t.Run("user inactive", func(t *testing.T) {
			f := newFixture(t, false)
			u, pair, err := f.s.Register(t.Context(), "nk", "a@b.com", "Passw0rd1")
			require.NoError(t, err)
			_, err = f.storage.SetActive(t.Context(), u.ID, false)
			require.NoError(t, err)

			_, err = f.s.Authenticate(t.Context(), pair.Access.Value)

			require.ErrorIs(t, err, apperrors.ErrUserInactive)
		})

		t.Run("touches last activity", func(t *testing.T) {
			f := newFixture(t, false)
			u, pair, err := f.s.Register(t.Context(), "nk", "a@b.com", "Passw0rd1")
			require.NoError(t, err)

			_, err = f.s.Authenticate(t.Context(), pair.Access.Value)
			require.NoError(t, err)

			got, err := f.storage.GetUserByID(t.Context(), u.ID)
			require.NoError(t, err)
			require.True(t, got.LastActiveAt.After(u.LastActiveAt) || got.LastActiveAt.Equal(u.LastActiveAt))
		})

		t.Run("revoked tokens", func(t *testing.T) {
			f := newFixture(t, false)
			u, pair, err := f.s.Register(t.Context(), "nk", "a@b.com", "Passw0rd1")
			require.NoError(t, err)

			err = f.s.RevokeAll(t.Context(), u.ID)
			require.NoError(t, err)

			_, err = f.s.Authenticate(t.Context(), pair.Access.Value)
			require.ErrorIs(t, err, apperrors.ErrTokenRevoked)

			_, err = f.s.Refresh(t.Context(), pair.Refresh.Value)
			require.ErrorIs(t, err, apperrors.ErrTokenRevoked)
		})

		t.Run("storage failure is not auth failure", func(t *testing.T) {
			f := newFixture(t, false)
			_, pair, err := f.s.Register(t.Context(), "nk", "a@b.com", "Passw0rd1")
			require.NoError(t, err)
			f.storage.Err = errors.New("connection reset")

			_, err = f.s.Authenticate(t.Context(), pair.Access.Value)

			require.Error(t, err)
			for _, known := range []error{apperrors.ErrTokenExpired, apperrors.ErrTokenInvalid, apperrors.ErrUserNotFound, apperrors.ErrUserInactive} {
				require.NotErrorIs(t, err, known)
			}
		})
	})

	t.Run("Refresh", func(t *testing.T) {
		t.Run("issues new access token only", func(t *testing.T) {
			f := newFixture(t, false)
			u, pair, err := f.s.Register(t.Context(), "nk", "a@b.com", "Passw0rd1")
			require.NoError(t, err)

			f.Advance(16 * time.Minute)
			access, err := f.s.Refresh(t.Context(), pair.Refresh.Value)
			require.NoError(t, err)
			require.NotEqual(t, pair.Access.Value, access.Value)

			got, err := f.s.Authenticate(t.Context(), access.Value)
			require.NoError(t, err)
			require.Equal(t, u.ID, got.ID)

			_, err = f.s.Refresh(t.Context(), pair.Refresh.Value)
			require.NoError(t, err, "refresh token is not rotated and may be reused")
		})

		t.Run("access token is not accepted", func(t *testing.T) {
			f := newFixture(t, false)
			_, pair, err := f.s.Register(t.Context(), "nk", "a@b.com", "Passw0rd1")
			require.NoError(t, err)

			_, err = f.s.Refresh(t.Context(), pair.Access.Value)

			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
		})

		t.Run("expired", func(t *testing.T) {
			f := newFixture(t, false)
			_, pair, err := f.s.Register(t.Context(), "nk", "a@b.com", "Passw0rd1")
			require.NoError(t, err)

			f.Advance(8 * 24 * time.Hour)
			_, err = f.s.Refresh(t.Context(), pair.Refresh.Value)

			require.ErrorIs(t, err, apperrors.ErrTokenExpired)
		})

		t.Run("inactive user", func(t *testing.T) {
			f := newFixture(t, false)
			u, pair, err := f.s.Register(t.Context(), "nk", "a@b.com", "Passw0rd1")
			require.NoError(t, err)
			_, err = f.storage.SetActive(t.Context(), u.ID, false)
			require.NoError(t, err)

			_, err = f.s.Refresh(t.Context(), pair.Refresh.Value)

			require.ErrorIs(t, err, apperrors.ErrUserInactive)
		})
	})
}

func Test_AuthCookies(t *testing.T) {
	t.Parallel()

	pair := models.TokenPair{
		Access:  models.IssuedToken{Value: "access-value"},
		Refresh: models.IssuedToken{Value: "refresh-value"},
	}

	t.Run("set token pair", func(t *testing.T) {
		for _, secure := range []bool{false, true} {
			f := newFixture(t, secure)
			w := httptest.NewRecorder()

			f.s.SetTokenPairToResponse(w, pair)

			cookies := w.Result().Cookies()
			require.Len(t, cookies, 2)
			byName := map[string]*http.Cookie{cookies[0].Name: cookies[0], cookies[1].Name: cookies[1]}

			access := byName[auth.AccessCookieName]
			require.NotNil(t, access)
			assert.Equal(t, "access-value", access.Value)
			assert.Equal(t, 15*60, access.MaxAge)

			refresh := byName[auth.RefreshCookieName]
			require.NotNil(t, refresh)
			assert.Equal(t, "refresh-value", refresh.Value)
			assert.Equal(t, 7*24*60*60, refresh.MaxAge)

			for _, c := range cookies {
				assert.True(t, c.HttpOnly, "cookie should be HttpOnly")
				assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
				assert.Equal(t, "/", c.Path)
				assert.Equal(t, secure, c.Secure, "secure flag should follow config")
			}
		}
	})

	t.Run("clear tokens", func(t *testing.T) {
		f := newFixture(t, false)
		w := httptest.NewRecorder()

		f.s.ClearTokens(w)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 2)
		for _, c := range cookies {
			assert.Empty(t, c.Value)
			assert.Equal(t, -1, c.MaxAge, "cookie should be expired")
		}
	})

	t.Run("access from header wins over cookie", func(t *testing.T) {
		f := newFixture(t, false)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer from-header")
		r.AddCookie(&http.Cookie{Name: auth.AccessCookieName, Value: "from-cookie"})

		got, err := f.s.GetAccessString(r)

		require.NoError(t, err)
		require.Equal(t, "from-header", got)
	})

	t.Run("access from cookie", func(t *testing.T) {
		f := newFixture(t, false)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwd2Q=")
		r.AddCookie(&http.Cookie{Name: auth.AccessCookieName, Value: "from-cookie"})

		got, err := f.s.GetAccessString(r)

		require.NoError(t, err)
		require.Equal(t, "from-cookie", got)
	})

	t.Run("no access token", func(t *testing.T) {
		f := newFixture(t, false)
		r := httptest.NewRequest(http.MethodGet, "/", nil)

		_, err := f.s.GetAccessString(r)

		require.ErrorIs(t, err, apperrors.ErrNoToken)
	})

	t.Run("refresh only from cookie", func(t *testing.T) {
		f := newFixture(t, false)
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Authorization", "Bearer refresh-in-header")

		_, err := f.s.GetRefreshString(r)
		require.ErrorIs(t, err, apperrors.ErrNoToken)

		r.AddCookie(&http.Cookie{Name: auth.RefreshCookieName, Value: "refresh-value"})
		got, err := f.s.GetRefreshString(r)
		require.NoError(t, err)
		require.Equal(t, "refresh-value", got)
	})
}
