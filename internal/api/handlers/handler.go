package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tasksync/internal/config"
	"tasksync/internal/repository"
	"tasksync/internal/session"
	"tasksync/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler holds the dependencies shared by every endpoint.
type Handler struct {
	deps *config.Dependencies
}

func New(deps *config.Dependencies) *Handler {
	return &Handler{deps: deps}
}

// IdentityHandler receives the verified caller explicitly.
type IdentityHandler func(c *fiber.Ctx, id session.Identity) error

// Authed adapts an IdentityHandler. Requests without an identity never
// reach h.
func Authed(h IdentityHandler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := session.FromContext(c)
		if !ok {
			return fail(c, fiber.StatusUnauthorized, "Unauthorized")
		}
		return h(c, id)
	}
}

func respond(c *fiber.Ctx, status int, message string, data interface{}) error {
	body := fiber.Map{
		"message": message,
		"success": true,
		"status":  status,
	}
	if data != nil {
		body["data"] = data
	}
	return c.Status(status).JSON(body)
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"success": false,
		"status":  status,
	})
}

// validationErrors flattens validator output into field -> rule.
func validationErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out[fieldName(fe.Namespace())] = fe.Tag()
		}
		return out
	}
	out["_"] = err.Error()
	return out
}

// fieldName turns "createProjectRequest.Tasks[0].AssigneeID" into
// "tasks[0].assignee_id".
func fieldName(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	parts := strings.Split(ns, ".")
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || (nextLower && runes[i-1] != '[') {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// parseBody decodes and validates the JSON body into req. On failure the
// 400 response has already been written and the returned error is the
// result of writing it.
func parseBody(c *fiber.Ctx, req interface{}, what string) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		logger.SecurityLogger.Warn("Bad request body", zap.String("handler", what), zap.Error(err))
		return false, fail(c, fiber.StatusBadRequest, "Bad request")
	}
	if err := config.Validate.Struct(req); err != nil {
		logger.AuditLogger.Warn("Validation error", zap.String("handler", what), zap.Error(err))
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation error",
			"errors":  validationErrors(err),
			"success": false,
			"status":  fiber.StatusBadRequest,
		})
	}
	return true, nil
}

func paramID(c *fiber.Ctx) (int64, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, false
	}
	return int64(id), true
}

// storeError maps repository sentinels onto the response taxonomy. Anything
// unexpected is logged and hidden behind a generic 500.
func storeError(c *fiber.Ctx, err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fail(c, fiber.StatusNotFound, what+" not found")
	case errors.Is(err, repository.ErrConflict):
		return fail(c, fiber.StatusConflict, what+" already exists")
	case errors.Is(err, repository.ErrInvalidReference):
		return fail(c, fiber.StatusBadRequest, "Referenced record does not exist")
	}
	logger.ErrorLogger.Error("Store error",
		zap.String("resource", what),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return fail(c, fiber.StatusInternalServerError, "Internal server error")
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// parseDate accepts a calendar date ("2025-03-01") or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func invalidField(c *fiber.Ctx, field, rule string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation error",
		"errors":  map[string]string{field: rule},
		"success": false,
		"status":  fiber.StatusBadRequest,
	})
}
