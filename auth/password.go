package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt accepts
const MaxPasswordBytes = 72

var (
	// ErrPasswordMismatch is returned when a password does not match its hash
	ErrPasswordMismatch = errors.New("password does not match")
	// ErrPasswordTooLong is returned by Hash for passwords over MaxPasswordBytes
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
)

// CredentialVault hashes and verifies admin passwords
type CredentialVault interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// BcryptVault implements CredentialVault with bcrypt
type BcryptVault struct {
	cost int
}

// NewBcryptVault creates a vault. A cost outside bcrypt's range falls back to bcrypt.DefaultCost.
func NewBcryptVault(cost int) *BcryptVault {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptVault{cost: cost}
}

// Hash generates a bcrypt hash of the password
func (v *BcryptVault) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify compares a password with a hash
func (v *BcryptVault) Verify(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	return nil
}
