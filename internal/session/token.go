package session

import (
	"errors"
	"fmt"
	"time"

	"tasksync/internal/models"

	"github.com/golang-jwt/jwt/v4"
)

const (
	DefaultTTL        = 30 * 24 * time.Hour
	DefaultRenewAfter = 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid session token")

// Identity is the request-scoped caller, derived from a verified token.
type Identity struct {
	UserID int64       `json:"id"`
	Email  string      `json:"email"`
	Name   string      `json:"name"`
	Role   models.Role `json:"role"`
}

func (i Identity) IsAdmin() bool { return i.Role == models.RoleAdmin }

// Dashboard is the landing page for the identity's role.
func (i Identity) Dashboard() string {
	if i.IsAdmin() {
		return "/admin/dashboard"
	}
	return "/user/dashboard"
}

type Claims struct {
	UserID int64       `json:"uid,omitempty"`
	Email  string      `json:"email"`
	Name   string      `json:"name,omitempty"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Email: c.Email, Name: c.Name, Role: c.Role}
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret     []byte
	ttl        time.Duration
	renewAfter time.Duration
	now        func() time.Time
}

func NewIssuer(secret []byte, ttl, renewAfter time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if renewAfter < 0 {
		renewAfter = DefaultRenewAfter
	}
	return &Issuer{secret: secret, ttl: ttl, renewAfter: renewAfter, now: time.Now}
}

func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for id and returns it with its expiry.
func (i *Issuer) Issue(id Identity) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		UserID: id.UserID,
		Email:  id.Email,
		Name:   id.Name,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", id.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, exp, nil
}

// Parse verifies the signature and expiry. Every failure, including an
// unexpected signing method or an unknown role, is ErrInvalidToken.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NeedsRenewal reports whether the token is old enough to be re-issued.
func (i *Issuer) NeedsRenewal(c *Claims) bool {
	if c.IssuedAt == nil {
		return true
	}
	return i.now().Sub(c.IssuedAt.Time) >= i.renewAfter
}
