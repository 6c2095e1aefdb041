package middleware

import (
	"strings"

	"tasksync/internal/flash"
	"tasksync/internal/session"
	"tasksync/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Access int

const (
	Public Access = iota
	// GuestOnly halaman login/register; user yang sudah login dialihkan.
	GuestOnly
	Authenticated
	UserOnly
	AdminOnly
)

func (a Access) String() string {
	switch a {
	case GuestOnly:
		return "guest-only"
	case Authenticated:
		return "authenticated"
	case UserOnly:
		return "user-only"
	case AdminOnly:
		return "admin-only"
	default:
		return "public"
	}
}

// Rule grants Access to every path under Prefix. API rules answer with JSON
// status codes instead of page redirects.
type Rule struct {
	Prefix string
	Exact  bool
	Access Access
	API    bool
}

// Policy is the single access table for the whole app. Paths that match no
// rule are public pages.
var Policy = []Rule{
	{Prefix: "/", Exact: true, Access: GuestOnly},
	{Prefix: "/login", Access: GuestOnly},
	{Prefix: "/register", Access: GuestOnly},
	{Prefix: "/verify", Access: GuestOnly},
	{Prefix: "/forgot-password", Access: GuestOnly},
	{Prefix: "/user", Access: UserOnly},
	{Prefix: "/admin", Access: AdminOnly},

	{Prefix: "/api", Access: Authenticated, API: true},
	{Prefix: "/api/auth", Access: Public, API: true},
	{Prefix: "/api/auth/session", Access: Authenticated, API: true},
	{Prefix: "/api/auth/logout", Access: Authenticated, API: true},
	{Prefix: "/api/admin", Access: AdminOnly, API: true},
	{Prefix: "/ws", Access: Authenticated, API: true},
}

const (
	MsgLoginRequired = "You must log in first"
	MsgAlreadyIn     = "You are already logged in"
	MsgNoAccess      = "You do not have access to that page"
)

// cleanPath normalizes p the way rules are written: lower case, no
// trailing slash.
func cleanPath(p string) string {
	p = strings.ToLower(p)
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			return "/"
		}
	}
	return p
}

func (r Rule) matches(path string) bool {
	if r.Exact {
		return path == r.Prefix
	}
	return path == r.Prefix || strings.HasPrefix(path, r.Prefix+"/")
}

// Match returns the rule with the longest matching prefix. A prefix only
// matches on a segment boundary, so /user does not cover /users.
func Match(rules []Rule, path string) Rule {
	path = cleanPath(path)
	best := Rule{Prefix: "", Access: Public}
	for _, r := range rules {
		if r.matches(path) && len(r.Prefix) > len(best.Prefix) {
			best = r
		}
	}
	return best
}

type Outcome int

const (
	Pass Outcome = iota
	Redirect
	Deny
)

type Decision struct {
	Outcome  Outcome
	Status   int
	Location string
	Flash    flash.Kind
	Message  string
}

func redirect(to string, kind flash.Kind, msg string) Decision {
	return Decision{Outcome: Redirect, Status: fiber.StatusFound, Location: to, Flash: kind, Message: msg}
}

func deny(status int, msg string) Decision {
	return Decision{Outcome: Deny, Status: status, Message: msg}
}

// Decide is the whole authorization decision for one request. id is nil
// when the request carries no valid session.
func Decide(r Rule, id *session.Identity) Decision {
	if r.API {
		switch r.Access {
		case Public, GuestOnly:
			return Decision{Outcome: Pass}
		}
		if id == nil {
			return deny(fiber.StatusUnauthorized, "Unauthorized")
		}
		if r.Access == AdminOnly && !id.IsAdmin() || r.Access == UserOnly && id.IsAdmin() {
			return deny(fiber.StatusForbidden, "Forbidden")
		}
		return Decision{Outcome: Pass}
	}

	switch r.Access {
	case GuestOnly:
		if id != nil {
			return redirect(id.Dashboard(), flash.Success, MsgAlreadyIn)
		}
	case Authenticated, UserOnly, AdminOnly:
		if id == nil {
			return redirect("/login", flash.Error, MsgLoginRequired)
		}
		if r.Access == AdminOnly && !id.IsAdmin() {
			return redirect("/user/dashboard", flash.Error, MsgNoAccess)
		}
		if r.Access == UserOnly && id.IsAdmin() {
			return redirect("/admin/dashboard", flash.Error, MsgNoAccess)
		}
	}
	return Decision{Outcome: Pass}
}

// Gate enforces rules before any handler runs. It must be mounted after
// Session so the identity is already attached.
func Gate(rules []Rule) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rule := Match(rules, c.Path())
		var id *session.Identity
		if ident, ok := session.FromContext(c); ok {
			id = &ident
		}

		d := Decide(rule, id)
		switch d.Outcome {
		case Redirect:
			if d.Flash == flash.Error {
				logger.SecurityLogger.Warn("Page access denied",
					zap.String("path", c.Path()),
					zap.String("access", rule.Access.String()),
					zap.String("redirect", d.Location),
				)
			}
			flash.Set(c, d.Flash, d.Message, flash.RedirectMaxAge)
			return c.Redirect(d.Location, d.Status)
		case Deny:
			logger.SecurityLogger.Warn("API access denied",
				zap.String("path", c.Path()),
				zap.String("access", rule.Access.String()),
				zap.Int("status", d.Status),
			)
			return c.Status(d.Status).JSON(fiber.Map{
				"message": d.Message,
				"success": false,
				"status":  d.Status,
			})
		}
		return c.Next()
	}
}
