package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	return slices.Contains([]Role{RoleUser, RoleModerator, RoleAdmin}, r)
}

// Principal of the site. Never deleted by the service itself, deactivated instead,
// except when the owner asks to delete the account
type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	Email          string
	HashedPassword string
	Role           Role
	IsActive       bool
	LastActiveAt   time.Time
	LoginCount     int
	Avatar         string
	Bio            string

	// Incremented to revoke every token issued before
	TokenVersion int
}

// Staff may act on resources they do not own
func (u User) IsStaff() bool {
	return u.Role == RoleAdmin || u.Role == RoleModerator
}
