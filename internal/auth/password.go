package auth

import (
	"errors"
	"fmt"

	"tasksync/internal/models"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoPassword: akun dibuat lewat OAuth dan belum punya password lokal.
	ErrNoPassword = errors.New("account has no local password")
)

// Cost is lowered by tests.
var Cost = bcrypt.DefaultCost

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword verifies password against the user's stored hash.
func CheckPassword(u *models.User, password string) error {
	if !u.HasPassword() {
		return ErrNoPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
