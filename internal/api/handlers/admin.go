package handlers

import (
	"tasksync/internal/models"
	"tasksync/internal/report"
	"tasksync/internal/session"
	"tasksync/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// requireAdmin is checked by every admin handler on top of the gate.
func requireAdmin(c *fiber.Ctx, id session.Identity) error {
	logger.SecurityLogger.Warn("Admin endpoint reached by non-admin",
		zap.String("path", c.Path()),
		zap.Int64("user_id", id.UserID),
	)
	return fail(c, fiber.StatusForbidden, "Forbidden")
}

func (h *Handler) AdminDashboard(c *fiber.Ctx, id session.Identity) error {
	if !id.IsAdmin() {
		return requireAdmin(c, id)
	}
	ctx := c.UserContext()
	users, err := h.deps.Store.ListUsers(ctx)
	if err != nil {
		return storeError(c, err, "User")
	}
	projects, err := h.deps.Store.ListProjects(ctx)
	if err != nil {
		return storeError(c, err, "Project")
	}
	tasks, err := h.deps.Store.ListTasksByProjects(ctx, projectIDs(projects))
	if err != nil {
		return storeError(c, err, "Task")
	}
	return respond(c, fiber.StatusOK, "Dashboard fetched successfully",
		report.BuildAdminDashboard(users, projects, tasks, h.deps.Clock()))
}

func (h *Handler) AdminListUsers(c *fiber.Ctx, id session.Identity) error {
	if !id.IsAdmin() {
		return requireAdmin(c, id)
	}
	users, err := h.deps.Store.ListUsers(c.UserContext())
	if err != nil {
		return storeError(c, err, "User")
	}
	logger.AuditLogger.Info("Users fetched successfully", zap.Int64("admin_id", id.UserID))
	return respond(c, fiber.StatusOK, "Users fetched successfully", users)
}

type setRoleRequest struct {
	Role models.Role `json:"role" validate:"required,oneof=ADMIN USER"`
}

// AdminSetRole changes another user's role. The new role reaches that
// user's session the next time they sign in.
func (h *Handler) AdminSetRole(c *fiber.Ctx, id session.Identity) error {
	if !id.IsAdmin() {
		return requireAdmin(c, id)
	}
	targetID, ok := paramID(c)
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid user ID")
	}
	var req setRoleRequest
	if ok, err := parseBody(c, &req, "set role"); !ok {
		return err
	}
	if targetID == id.UserID {
		return fail(c, fiber.StatusBadRequest, "You cannot change your own role")
	}

	ctx := c.UserContext()
	if err := h.deps.Store.SetRole(ctx, targetID, req.Role); err != nil {
		return storeError(c, err, "User")
	}
	user, err := h.deps.Store.GetUserByID(ctx, targetID)
	if err != nil {
		return storeError(c, err, "User")
	}
	logger.AuditLogger.Info("User role changed",
		zap.Int64("admin_id", id.UserID),
		zap.Int64("user_id", targetID),
		zap.String("role", string(req.Role)),
	)
	return respond(c, fiber.StatusOK, "Role updated successfully", user)
}
