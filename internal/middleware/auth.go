package middleware

import (
	"errors"
	"strings"

	"tasksync/internal/session"
	"tasksync/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// bearerToken ambil token dari header "Authorization: Bearer <token>",
// dipakai oleh klien API yang tidak menyimpan cookie.
func bearerToken(c *fiber.Ctx) string {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// Session verifies the session token on every request and attaches the
// resulting identity. It never rejects: a malformed or expired token is
// dropped (and its cookie cleared) and the request continues anonymous, so
// the Gate decides what an anonymous caller may see.
func Session(iss *session.Issuer, deriver *session.Deriver, secureCookie bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies(session.CookieName)
		fromCookie := token != ""
		if !fromCookie {
			token = bearerToken(c)
		}
		if token == "" {
			return c.Next()
		}

		claims, err := iss.Parse(token)
		if err != nil {
			logger.SecurityLogger.Warn("Invalid session token",
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			if fromCookie {
				session.ClearCookie(c, secureCookie)
			}
			return c.Next()
		}

		id, reissue, err := deriver.Refresh(c.UserContext(), claims)
		if err != nil {
			if errors.Is(err, session.ErrUnknownUser) {
				logger.SecurityLogger.Warn("Session for unknown user", zap.String("email", claims.Email))
			} else {
				logger.ErrorLogger.Error("Error resolving session", zap.Error(err))
			}
			if fromCookie {
				session.ClearCookie(c, secureCookie)
			}
			return c.Next()
		}

		// sliding expiry: token lama diperbarui setelah jendela renewal
		if fromCookie && (reissue || iss.NeedsRenewal(claims)) {
			fresh, exp, err := iss.Issue(id)
			if err != nil {
				logger.ErrorLogger.Error("Error renewing session", zap.Error(err))
			} else {
				session.SetCookie(c, fresh, exp, secureCookie)
			}
		}

		session.Attach(c, id)
		return c.Next()
	}
}
