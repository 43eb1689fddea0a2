package auth

import (
	"crypto/sha256"

	"golang.org/x/crypto/bcrypt"
)

const defaultBcryptCost = 12

// Hasher used when caller doesn't provide it's own
var DefaultHasher PasswordHasher = BcryptHasher{Cost: defaultBcryptCost}

// Bcrypt password hasher
// Password is pre-hashed with sha256 so passwords longer than 72 bytes are not truncated
type BcryptHasher struct {
	// bcrypt.DefaultCost if zero
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], h.Cost)
	return string(hash), err
}

func (h BcryptHasher) Compare(hashedPassword string, password string) error {
	sum := sha256.Sum256([]byte(password))
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), sum[:])
}
