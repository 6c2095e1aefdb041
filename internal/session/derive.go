package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tasksync/internal/models"
	"tasksync/internal/repository"
)

var (
	ErrNoEmail = errors.New("external identity has no email")
	// ErrUnknownUser berarti klaim menunjuk user yang tidak ada lagi.
	ErrUnknownUser = errors.New("session user no longer exists")
)

// ExternalIdentity is what an OAuth provider tells us about the caller.
type ExternalIdentity struct {
	Provider      string
	Subject       string
	Email         string
	Name          string
	EmailVerified bool
}

type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	MarkVerified(ctx context.Context, id int64, at time.Time) error
}

// Deriver maps external identities and stale claims onto internal users.
type Deriver struct {
	Users UserLookup
	Now   func() time.Time
}

func NewDeriver(users UserLookup) *Deriver {
	return &Deriver{Users: users, Now: time.Now}
}

func FromUser(u *models.User) Identity {
	return Identity{UserID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

// FromExternal resolves the provider identity to an internal user, creating
// a verified USER account on first login.
func (d *Deriver) FromExternal(ctx context.Context, ext ExternalIdentity) (Identity, error) {
	email := models.NormalizeEmail(ext.Email)
	if email == "" {
		return Identity{}, ErrNoEmail
	}

	u, err := d.Users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !u.Verified() && ext.EmailVerified {
			now := d.Now()
			if err := d.Users.MarkVerified(ctx, u.ID, now); err != nil {
				return Identity{}, fmt.Errorf("mark oauth user verified: %w", err)
			}
			u.EmailVerifiedAt = &now
		}
		return FromUser(u), nil
	case !errors.Is(err, repository.ErrNotFound):
		return Identity{}, fmt.Errorf("lookup oauth user: %w", err)
	}

	now := d.Now()
	name := strings.TrimSpace(ext.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	provider := ext.Provider
	if provider == "" {
		provider = models.ProviderGoogle
	}
	u = &models.User{
		Name:            name,
		Email:           email,
		Provider:        provider,
		Role:            models.RoleUser,
		EmailVerifiedAt: &now,
	}
	if err := d.Users.CreateUser(ctx, u); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return Identity{}, fmt.Errorf("create oauth user: %w", err)
		}
		// login bersamaan untuk email yang sama, ambil baris yang menang
		u, err = d.Users.GetUserByEmail(ctx, email)
		if err != nil {
			return Identity{}, fmt.Errorf("lookup oauth user after conflict: %w", err)
		}
	}
	return FromUser(u), nil
}

// Refresh returns the identity carried by the claims. Claims missing the
// internal id are re-resolved by email; the bool reports that the token
// should be re-issued with the resolved values.
func (d *Deriver) Refresh(ctx context.Context, c *Claims) (Identity, bool, error) {
	if c.UserID != 0 {
		return c.Identity(), false, nil
	}
	email := models.NormalizeEmail(c.Email)
	if email == "" {
		return Identity{}, false, ErrUnknownUser
	}
	u, err := d.Users.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return Identity{}, false, ErrUnknownUser
	}
	if err != nil {
		return Identity{}, false, fmt.Errorf("resolve session user: %w", err)
	}
	return FromUser(u), true, nil
}
