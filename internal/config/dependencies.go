package config

import (
	"time"

	"tasksync/configs"
	"tasksync/internal/auth"
	"tasksync/internal/otp"
	"tasksync/internal/repository"
	"tasksync/internal/session"
	"tasksync/internal/websocket"

	"github.com/go-playground/validator/v10"
)

// Validate dipakai semua handler untuk memvalidasi payload.
var Validate = validator.New()

// Dependencies is everything a request handler may reach. It is built once
// in cmd/api (or by a test) and passed down explicitly.
type Dependencies struct {
	Config  configs.Config
	Store   repository.Store
	Issuer  *session.Issuer
	Deriver *session.Deriver
	OTP     *otp.Service
	// OAuth is nil when Google sign-in is not configured.
	OAuth auth.Provider
	Hub   *websocket.Hub
	Now   func() time.Time
}

func (d *Dependencies) Clock() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}
