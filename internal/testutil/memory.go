package testutil

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/guildhall/internal/apperrors"
	"github.com/nkiryanov/guildhall/internal/models"
	"github.com/nkiryanov/guildhall/internal/repository"
)

// In-memory storage for service and handler tests that don't need a real database.
// Behaves like repository/postgres regarding returned errors
type MemoryStorage struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.User

	// Set to make every call fail with the error
	Err error
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{users: make(map[uuid.UUID]models.User)}
}

func (s *MemoryStorage) User() repository.UserRepo {
	return s
}

func (s *MemoryStorage) CreateUser(_ context.Context, params repository.CreateUserParams) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return models.User{}, s.Err
	}

	for _, u := range s.users {
		if u.Username == params.Username || strings.EqualFold(u.Email, params.Email) {
			return models.User{}, apperrors.ErrUserAlreadyExists
		}
	}

	role := params.Role
	if role == "" {
		role = models.RoleUser
	}
	now := time.Now()

	u := models.User{
		ID:             uuid.New(),
		CreatedAt:      now,
		Username:       params.Username,
		Email:          params.Email,
		HashedPassword: params.HashedPassword,
		Role:           role,
		IsActive:       true,
		LastActiveAt:   now,
		Avatar:         params.Avatar,
	}
	s.users[u.ID] = u

	return u, nil
}

func (s *MemoryStorage) GetUserByID(_ context.Context, id uuid.UUID) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return models.User{}, s.Err
	}

	u, ok := s.users[id]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryStorage) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return models.User{}, s.Err
	}

	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, apperrors.ErrUserNotFound
}

func (s *MemoryStorage) UpdateProfile(_ context.Context, id uuid.UUID, params repository.UpdateProfileParams) (models.User, error) {
	if params.Username != nil {
		s.mu.Lock()
		for _, u := range s.users {
			if u.ID != id && u.Username == *params.Username {
				s.mu.Unlock()
				return models.User{}, apperrors.ErrUserAlreadyExists
			}
		}
		s.mu.Unlock()
	}

	return s.update(id, func(u *models.User) {
		if params.Username != nil {
			u.Username = *params.Username
		}
		if params.Avatar != nil {
			u.Avatar = *params.Avatar
		}
		if params.Bio != nil {
			u.Bio = *params.Bio
		}
	})
}

func (s *MemoryStorage) SetActive(_ context.Context, id uuid.UUID, active bool) (models.User, error) {
	return s.update(id, func(u *models.User) { u.IsActive = active })
}

func (s *MemoryStorage) SetRole(_ context.Context, id uuid.UUID, role models.Role) (models.User, error) {
	return s.update(id, func(u *models.User) { u.Role = role })
}

func (s *MemoryStorage) ListUsers(_ context.Context, params repository.ListUsersParams) ([]models.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, 0, s.Err
	}

	var matched []models.User
	for _, u := range s.users {
		if params.Role != "" && u.Role != params.Role {
			continue
		}
		if params.IsActive != nil && u.IsActive != *params.IsActive {
			continue
		}
		matched = append(matched, u)
	}
	slices.SortFunc(matched, func(a, b models.User) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	total := len(matched)
	start := min(params.Offset, total)
	end := min(start+params.Limit, total)

	return matched[start:end], total, nil
}

func (s *MemoryStorage) TouchLastActive(_ context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.update(id, func(u *models.User) { u.LastActiveAt = at })
	return err
}

func (s *MemoryStorage) RecordLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.update(id, func(u *models.User) {
		u.LastActiveAt = at
		u.LoginCount++
	})
	return err
}

func (s *MemoryStorage) BumpTokenVersion(_ context.Context, id uuid.UUID) (int, error) {
	u, err := s.update(id, func(u *models.User) { u.TokenVersion++ })
	return u.TokenVersion, err
}

func (s *MemoryStorage) DeleteUser(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	if _, ok := s.users[id]; !ok {
		return apperrors.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

// Put user as is, handy to prepare staff or inactive users
func (s *MemoryStorage) Put(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[u.ID] = u
}

func (s *MemoryStorage) update(id uuid.UUID, fn func(u *models.User)) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return models.User{}, s.Err
	}

	u, ok := s.users[id]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	fn(&u)
	s.users[id] = u

	return u, nil
}
