package user

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/guildhall/internal/apperrors"
	"github.com/nkiryanov/guildhall/internal/models"
	"github.com/nkiryanov/guildhall/internal/repository"
	"github.com/nkiryanov/guildhall/internal/repository/postgres"
	"github.com/nkiryanov/guildhall/internal/service/auth"
	"github.com/nkiryanov/guildhall/internal/testutil"
)

func TestUser(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Helper function to create UserService within transaction
	inTx := func(t *testing.T, fn func(s *UserService, storage repository.Storage)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			userService := NewService(auth.BcryptHasher{Cost: bcrypt.MinCost}, storage.User())
			fn(userService, storage)
		})
	}

	t.Run("CreateUser", func(t *testing.T) {
		t.Run("create ok", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				user, err := s.CreateUser(t.Context(), "test-user", "  Test@Example.COM ", "Passw0rd1")

				require.NoError(t, err, "creating new user should be ok")
				require.NotEmpty(t, user.ID, "user ID should not be empty")
				require.Equal(t, "test-user", user.Username, "username should match")
				require.Equal(t, "test@example.com", user.Email, "email should be normalized")
				require.Equal(t, models.RoleUser, user.Role)
				require.Equal(t, DefaultAvatar("test-user"), user.Avatar, "default avatar should be set")
				require.NotEqual(t, "Passw0rd1", user.HashedPassword, "password should be hashed")
				require.NotZero(t, user.CreatedAt, "created at should be set")
			})
		})

		t.Run("duplicate email fail", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				_, err := s.CreateUser(t.Context(), "first", "a@b.com", "Passw0rd1")
				require.NoError(t, err)

				_, err = s.CreateUser(t.Context(), "second", "A@B.com", "Passw0rd1")

				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists, "emails compared case insensitive")
			})
		})
	})

	t.Run("CheckCredentials", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				created, err := s.CreateUser(t.Context(), "nkiryanov", "a@b.com", "Passw0rd1")
				require.NoError(t, err)

				got, err := s.CheckCredentials(t.Context(), "A@b.com", "Passw0rd1")

				require.NoError(t, err)
				require.Equal(t, created.ID, got.ID)
			})
		})

		t.Run("wrong password or unknown email", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				_, err := s.CreateUser(t.Context(), "nkiryanov", "a@b.com", "Passw0rd1")
				require.NoError(t, err)

				_, err = s.CheckCredentials(t.Context(), "a@b.com", "wrong")
				require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

				_, err = s.CheckCredentials(t.Context(), "nobody@b.com", "Passw0rd1")
				require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
			})
		})

		t.Run("inactive user", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				created, err := s.CreateUser(t.Context(), "nkiryanov", "a@b.com", "Passw0rd1")
				require.NoError(t, err)
				_, err = s.SetActive(t.Context(), created.ID, false)
				require.NoError(t, err)

				_, err = s.CheckCredentials(t.Context(), "a@b.com", "Passw0rd1")

				require.ErrorIs(t, err, apperrors.ErrUserInactive)
			})
		})
	})

	t.Run("RecordLogin", func(t *testing.T) {
		inTx(t, func(s *UserService, _ repository.Storage) {
			created, err := s.CreateUser(t.Context(), "nkiryanov", "a@b.com", "Passw0rd1")
			require.NoError(t, err)
			at := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
			s.now = func() time.Time { return at }

			got, err := s.RecordLogin(t.Context(), created.ID)

			require.NoError(t, err)
			require.Equal(t, 1, got.LoginCount)
			require.True(t, at.Equal(got.LastActiveAt), "last activity should be updated")
		})
	})

	t.Run("UpdateProfile", func(t *testing.T) {
		inTx(t, func(s *UserService, _ repository.Storage) {
			created, err := s.CreateUser(t.Context(), "nkiryanov", "a@b.com", "Passw0rd1")
			require.NoError(t, err)
			username := "  renamed "

			got, err := s.UpdateProfile(t.Context(), created.ID, repository.UpdateProfileParams{Username: &username})

			require.NoError(t, err)
			require.Equal(t, "renamed", got.Username)
		})
	})

	t.Run("RevokeTokens", func(t *testing.T) {
		inTx(t, func(s *UserService, _ repository.Storage) {
			created, err := s.CreateUser(t.Context(), "nkiryanov", "a@b.com", "Passw0rd1")
			require.NoError(t, err)

			version, err := s.RevokeTokens(t.Context(), created.ID)

			require.NoError(t, err)
			require.Equal(t, created.TokenVersion+1, version)
		})
	})

	t.Run("DeleteUser", func(t *testing.T) {
		inTx(t, func(s *UserService, _ repository.Storage) {
			created, err := s.CreateUser(t.Context(), "nkiryanov", "a@b.com", "Passw0rd1")
			require.NoError(t, err)

			err = s.DeleteUser(t.Context(), created.ID)
			require.NoError(t, err)

			_, err = s.GetUserByID(t.Context(), created.ID)
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)

			err = s.DeleteUser(t.Context(), uuid.New())
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("SetRole", func(t *testing.T) {
		inTx(t, func(s *UserService, _ repository.Storage) {
			admin, err := s.CreateUser(t.Context(), "admin", "admin@b.com", "Passw0rd1")
			require.NoError(t, err)
			member, err := s.CreateUser(t.Context(), "member", "member@b.com", "Passw0rd1")
			require.NoError(t, err)

			updated, err := s.SetRole(t.Context(), admin.ID, member.ID, models.RoleModerator)
			require.NoError(t, err)
			require.Equal(t, models.RoleModerator, updated.Role)

			_, err = s.SetRole(t.Context(), admin.ID, member.ID, models.Role("owner"))
			require.ErrorIs(t, err, apperrors.ErrInvalidRole)

			_, err = s.SetRole(t.Context(), admin.ID, admin.ID, models.RoleUser)
			require.ErrorIs(t, err, apperrors.ErrSelfAction)

			_, err = s.SetRole(t.Context(), admin.ID, uuid.New(), models.RoleUser)
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("DeactivateUser", func(t *testing.T) {
		inTx(t, func(s *UserService, _ repository.Storage) {
			admin, err := s.CreateUser(t.Context(), "admin", "admin@b.com", "Passw0rd1")
			require.NoError(t, err)
			member, err := s.CreateUser(t.Context(), "member", "member@b.com", "Passw0rd1")
			require.NoError(t, err)

			_, err = s.DeactivateUser(t.Context(), admin.ID, admin.ID)
			require.ErrorIs(t, err, apperrors.ErrSelfAction)

			updated, err := s.DeactivateUser(t.Context(), admin.ID, member.ID)
			require.NoError(t, err)
			require.False(t, updated.IsActive)

			_, err = s.CheckCredentials(t.Context(), "member@b.com", "Passw0rd1")
			require.Error(t, err, "deactivated user can't log in")
		})
	})

	t.Run("ListUsers", func(t *testing.T) {
		inTx(t, func(s *UserService, _ repository.Storage) {
			for _, name := range []string{"first", "second", "third"} {
				_, err := s.CreateUser(t.Context(), name, name+"@b.com", "Passw0rd1")
				require.NoError(t, err)
			}

			page, err := s.ListUsers(t.Context(), repository.ListUsersParams{}, 2, 2)
			require.NoError(t, err)
			require.Len(t, page.Users, 1)
			require.Equal(t, 3, page.Total)
			require.Equal(t, 2, page.Page)
			require.Equal(t, 2, page.Pages())

			page, err = s.ListUsers(t.Context(), repository.ListUsersParams{}, 0, 1000)
			require.NoError(t, err)
			require.Equal(t, 1, page.Page, "page clamped to first")
			require.Equal(t, MaxPageLimit, page.Limit, "limit clamped to max")
			require.Len(t, page.Users, 3)

			page, err = s.ListUsers(t.Context(), repository.ListUsersParams{Role: models.RoleAdmin}, 1, 0)
			require.NoError(t, err)
			require.Equal(t, DefaultPageLimit, page.Limit)
			require.Empty(t, page.Users)
			require.Zero(t, page.Pages())
		})
	})
}
