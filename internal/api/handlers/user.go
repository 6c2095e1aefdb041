package handlers

import (
	"strings"

	"tasksync/internal/auth"
	"tasksync/internal/models"
	"tasksync/internal/report"
	"tasksync/internal/repository"
	"tasksync/internal/session"
	"tasksync/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const searchLimit = 20

// SearchUsers backs the assignee and friend pickers.
func (h *Handler) SearchUsers(c *fiber.Ctx, id session.Identity) error {
	q := strings.TrimSpace(c.Query("q"))
	users, err := h.deps.Store.SearchUsers(c.UserContext(), q, id.UserID, searchLimit)
	if err != nil {
		return storeError(c, err, "User")
	}
	return respond(c, fiber.StatusOK, "Users fetched successfully", users)
}

func (h *Handler) GetProfile(c *fiber.Ctx, id session.Identity) error {
	user, err := h.deps.Store.GetUserByID(c.UserContext(), id.UserID)
	if err != nil {
		return storeError(c, err, "User")
	}
	return respond(c, fiber.StatusOK, "Profile found", user)
}

type updateProfileRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=255"`
	Phone     *string `json:"phone" validate:"omitempty,max=32"`
	Gender    *string `json:"gender" validate:"omitempty,oneof=LAKI_LAKI PEREMPUAN"`
	BirthDate *string `json:"birth_date"`
}

func (h *Handler) UpdateProfile(c *fiber.Ctx, id session.Identity) error {
	var req updateProfileRequest
	if ok, err := parseBody(c, &req, "update profile"); !ok {
		return err
	}

	upd := repository.ProfileUpdate{Phone: req.Phone, Gender: req.Gender}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return invalidField(c, "name", "required")
		}
		upd.Name = &name
	}
	if req.BirthDate != nil {
		birth, err := parseDate(*req.BirthDate)
		if err != nil {
			return invalidField(c, "birth_date", "date")
		}
		if birth.After(h.deps.Clock()) {
			return invalidField(c, "birth_date", "past")
		}
		upd.BirthDate = &birth
	}

	user, err := h.deps.Store.UpdateProfile(c.UserContext(), id.UserID, upd)
	if err != nil {
		return storeError(c, err, "User")
	}
	logger.AuditLogger.Info("Profile updated", zap.Int64("user_id", id.UserID))
	return respond(c, fiber.StatusOK, "Profile updated successfully", user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=72"`
}

// ChangePassword requires the current password unless the account was
// created through OAuth and never had one.
func (h *Handler) ChangePassword(c *fiber.Ctx, id session.Identity) error {
	var req changePasswordRequest
	if ok, err := parseBody(c, &req, "change password"); !ok {
		return err
	}
	ctx := c.UserContext()

	user, err := h.deps.Store.GetUserByID(ctx, id.UserID)
	if err != nil {
		return storeError(c, err, "User")
	}
	if user.HasPassword() {
		if err := auth.CheckPassword(user, req.CurrentPassword); err != nil {
			logger.SecurityLogger.Warn("Wrong current password", zap.Int64("user_id", id.UserID))
			return fail(c, fiber.StatusBadRequest, "Current password is incorrect")
		}
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		logger.ErrorLogger.Error("Error hashing password", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Error hashing password")
	}
	if err := h.deps.Store.SetPassword(ctx, id.UserID, hash); err != nil {
		return storeError(c, err, "User")
	}
	logger.AuditLogger.Info("Password changed", zap.Int64("user_id", id.UserID))
	return respond(c, fiber.StatusOK, "Password changed successfully", nil)
}

// Dashboard aggregates the caller's projects and tasks.
func (h *Handler) Dashboard(c *fiber.Ctx, id session.Identity) error {
	ctx := c.UserContext()
	projects, err := h.deps.Store.ListProjectsForUser(ctx, id.UserID)
	if err != nil {
		return storeError(c, err, "Project")
	}
	tasks, err := h.deps.Store.ListTasksByProjects(ctx, projectIDs(projects))
	if err != nil {
		return storeError(c, err, "Task")
	}

	roles := make(map[int64]models.MemberRole, len(projects))
	for _, p := range projects {
		roles[p.ID] = memberRole(p, id.UserID)
	}
	return respond(c, fiber.StatusOK, "Dashboard fetched successfully",
		report.BuildUserDashboard(id.UserID, projects, tasks, roles, h.deps.Clock()))
}
