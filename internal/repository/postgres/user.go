package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/guildhall/internal/apperrors"
	"github.com/nkiryanov/guildhall/internal/models"
	"github.com/nkiryanov/guildhall/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const createUser = `-- name: CreateUser
INSERT INTO users (id, username, email, password_hash, role, avatar)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING *
`

func (r *UserRepo) CreateUser(ctx context.Context, params repository.CreateUserParams) (models.User, error) {
	role := params.Role
	if role == "" {
		role = models.RoleUser
	}

	rows, _ := r.DB.Query(ctx, createUser,
		uuid.New(),
		params.Username,
		params.Email,
		params.HashedPassword,
		string(role),
		params.Avatar,
	)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		if isUniqueViolation(err) {
			return user, apperrors.ErrUserAlreadyExists
		}

		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT * FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	return collectUser(rows)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT * FROM users
WHERE email = $1
`

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByEmail, email)
	return collectUser(rows)
}

const updateProfile = `-- name: UpdateProfile
UPDATE users
SET username = COALESCE($2, username),
    avatar   = COALESCE($3, avatar),
    bio      = COALESCE($4, bio)
WHERE id = $1
RETURNING *
`

func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, params repository.UpdateProfileParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, updateProfile, id, params.Username, params.Avatar, params.Bio)
	user, err := collectUser(rows)

	if isUniqueViolation(err) {
		return user, apperrors.ErrUserAlreadyExists
	}

	return user, err
}

const setActive = `-- name: SetActive
UPDATE users
SET is_active = $2
WHERE id = $1
RETURNING *
`

func (r *UserRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) (models.User, error) {
	rows, _ := r.DB.Query(ctx, setActive, id, active)
	return collectUser(rows)
}

const setRole = `-- name: SetRole
UPDATE users
SET role = $2
WHERE id = $1
RETURNING *
`

func (r *UserRepo) SetRole(ctx context.Context, id uuid.UUID, role models.Role) (models.User, error) {
	rows, _ := r.DB.Query(ctx, setRole, id, string(role))
	return collectUser(rows)
}

const listUsers = `-- name: ListUsers
SELECT * FROM users
WHERE ($1::text IS NULL OR role = $1)
  AND ($2::boolean IS NULL OR is_active = $2)
ORDER BY created_at DESC, id
LIMIT $3 OFFSET $4
`

const countUsers = `-- name: CountUsers
SELECT count(*) FROM users
WHERE ($1::text IS NULL OR role = $1)
  AND ($2::boolean IS NULL OR is_active = $2)
`

func (r *UserRepo) ListUsers(ctx context.Context, params repository.ListUsersParams) ([]models.User, int, error) {
	var role *string
	if params.Role != "" {
		s := string(params.Role)
		role = &s
	}

	var total int
	if err := r.DB.QueryRow(ctx, countUsers, role, params.IsActive).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	rows, _ := r.DB.Query(ctx, listUsers, role, params.IsActive, params.Limit, params.Offset)
	users, err := pgx.CollectRows(rows, rowToUser)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	return users, total, nil
}

const touchLastActive = `-- name: TouchLastActive
UPDATE users
SET last_active_at = $2
WHERE id = $1
`

func (r *UserRepo) TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.DB.Exec(ctx, touchLastActive, id, at)
	return execResult(tag, err)
}

const recordLogin = `-- name: RecordLogin
UPDATE users
SET last_active_at = $2,
    login_count = login_count + 1
WHERE id = $1
`

func (r *UserRepo) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.DB.Exec(ctx, recordLogin, id, at)
	return execResult(tag, err)
}

const bumpTokenVersion = `-- name: BumpTokenVersion
UPDATE users
SET token_version = token_version + 1
WHERE id = $1
RETURNING token_version
`

func (r *UserRepo) BumpTokenVersion(ctx context.Context, id uuid.UUID) (int, error) {
	var version int
	err := r.DB.QueryRow(ctx, bumpTokenVersion, id).Scan(&version)

	switch {
	case err == nil:
		return version, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, apperrors.ErrUserNotFound
	default:
		return 0, fmt.Errorf("db error: %w", err)
	}
}

const deleteUser = `-- name: DeleteUser
DELETE FROM users
WHERE id = $1
`

func (r *UserRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, deleteUser, id)
	return execResult(tag, err)
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func execResult(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Columns order follows the users table
func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	var role string
	err := row.Scan(
		&u.ID,
		&u.CreatedAt,
		&u.Username,
		&u.Email,
		&u.HashedPassword,
		&role,
		&u.IsActive,
		&u.LastActiveAt,
		&u.LoginCount,
		&u.Avatar,
		&u.Bio,
		&u.TokenVersion,
	)
	u.Role = models.Role(role)
	return u, err
}
