package session

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	CookieName = "tasksync_session"
	localsKey  = "identity"
)

func SetCookie(c *fiber.Ctx, token string, expires time.Time, secure bool) {
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func ClearCookie(c *fiber.Ctx, secure bool) {
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// Attach stores the verified identity for the rest of the request chain.
func Attach(c *fiber.Ctx, id Identity) {
	c.Locals(localsKey, id)
}

// FromContext returns the identity attached by the session middleware.
func FromContext(c *fiber.Ctx) (Identity, bool) {
	id, ok := c.Locals(localsKey).(Identity)
	return id, ok
}
