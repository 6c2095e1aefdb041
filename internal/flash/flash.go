// Package flash carries one-shot notices across a redirect in short-lived
// cookies that the next page reads and clears.
package flash

import (
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
)

type Kind string

const (
	Success Kind = "flash_success"
	Error   Kind = "flash_error"
)

const (
	// RedirectMaxAge dipakai oleh gate saat redirect halaman.
	RedirectMaxAge = 30 * time.Second
	// APIMaxAge dipakai oleh endpoint API (logout, callback OAuth).
	APIMaxAge = 10 * time.Second
)

func Set(c *fiber.Ctx, kind Kind, message string, maxAge time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     string(kind),
		Value:    url.QueryEscape(message),
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		Expires:  time.Now().Add(maxAge),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// Messages is the pending notices keyed by short kind name.
type Messages struct {
	Success string `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Read returns the pending messages and clears their cookies.
func Read(c *fiber.Ctx) Messages {
	return Messages{
		Success: take(c, Success),
		Error:   take(c, Error),
	}
}

func take(c *fiber.Ctx, kind Kind) string {
	raw := c.Cookies(string(kind))
	if raw == "" {
		return ""
	}
	c.Cookie(&fiber.Cookie{
		Name:    string(kind),
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
	msg, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}
	return msg
}
