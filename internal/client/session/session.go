// Package session keeps client side auth state: token pair and user snapshot.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Access token without refresh token can't be stored
var ErrIncomplete = errors.New("session has access token but no refresh token")

// Snapshot of user as server returned it
type User struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Avatar     string    `json:"avatar"`
	Bio        string    `json:"bio"`
	IsActive   bool      `json:"isActive"`
	LastActive time.Time `json:"lastActive"`
	LoginCount int       `json:"loginCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Session struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

func (s Session) Empty() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.User == nil
}

func (s Session) validate() error {
	if s.AccessToken != "" && s.RefreshToken == "" {
		return ErrIncomplete
	}
	return nil
}

// Store persists the session. Implementations are safe for concurrent use
type Store interface {
	// Stored session, empty one if nothing stored
	Load(ctx context.Context) (Session, error)

	// Replace stored session
	Save(ctx context.Context, s Session) error

	// Remove everything
	Clear(ctx context.Context) error
}
