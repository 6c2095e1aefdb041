package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tasksync/internal/models"
	"tasksync/internal/repository/migrations"

	"github.com/pressly/goose/v3"
	"golang.org/x/crypto/bcrypt"
)

// Migrate brings the schema up to the latest embedded migration.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// DeleteAllTable rolls every migration back. Only used by integration tests.
func DeleteAllTable(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.ResetContext(ctx, db, "."); err != nil {
		return fmt.Errorf("reset migrations: %w", err)
	}
	return nil
}

// CreateAdminUser seeds a verified ADMIN account. An existing user with the
// same email is left as it is.
func CreateAdminUser(ctx context.Context, users UserStore, email, password string) (bool, error) {
	if _, err := users.GetUserByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}
	hash := string(hashed)
	now := time.Now()
	admin := &models.User{
		Name:            "Administrator",
		Email:           email,
		PasswordHash:    &hash,
		Provider:        models.ProviderCredentials,
		Role:            models.RoleAdmin,
		EmailVerifiedAt: &now,
	}
	if err := users.CreateUser(ctx, admin); err != nil {
		if errors.Is(err, ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
