package handlers

import (
	"errors"
	"fmt"
	"strings"

	"tasksync/internal/models"
	"tasksync/internal/repository"
	"tasksync/internal/session"
	"tasksync/internal/websocket"
	"tasksync/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// validStatus mengecek status task: BELUM_SELESAI atau SELESAI.
func validStatus(status models.TaskStatus) bool {
	switch status {
	case models.TaskPending, models.TaskDone:
		return true
	default:
		return false
	}
}

// ListTasks returns the tasks assigned to the caller, optionally filtered
// by ?status=.
func (h *Handler) ListTasks(c *fiber.Ctx, id session.Identity) error {
	status := models.TaskStatus(strings.ToUpper(c.Query("status")))
	if status != "" && !validStatus(status) {
		return invalidField(c, "status", "oneof=BELUM_SELESAI SELESAI")
	}

	tasks, err := h.deps.Store.ListTasksByAssignee(c.UserContext(), id.UserID)
	if err != nil {
		return storeError(c, err, "Task")
	}
	if status != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if t.Status == status {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	return respond(c, fiber.StatusOK, "Tasks fetched successfully", tasks)
}

// taskAccess is what the caller may do with one task.
type taskAccess struct {
	task      *models.Task
	project   *models.Project
	isCreator bool
	// isMember is true for the creator as well.
	isMember bool
}

func (a taskAccess) isAssignee(userID int64) bool {
	return a.task.AssigneeID == userID
}

// loadTask fetches the task, its project and the caller's relation to it.
// Callers outside the project get 403.
func (h *Handler) loadTask(c *fiber.Ctx, id session.Identity) (taskAccess, bool, error) {
	taskID, ok := paramID(c)
	if !ok {
		return taskAccess{}, false, fail(c, fiber.StatusBadRequest, "Invalid task ID")
	}
	ctx := c.UserContext()
	task, err := h.deps.Store.GetTask(ctx, taskID)
	if err != nil {
		return taskAccess{}, false, storeError(c, err, "Task")
	}
	project, err := h.deps.Store.GetProject(ctx, task.ProjectID)
	if err != nil {
		return taskAccess{}, false, storeError(c, err, "Project")
	}

	access := taskAccess{task: task, project: project, isCreator: project.CreatorID == id.UserID}
	access.isMember = access.isCreator || access.isAssignee(id.UserID)
	if !access.isMember {
		_, err := h.deps.Store.GetMember(ctx, project.ID, id.UserID)
		switch {
		case err == nil:
			access.isMember = true
		case !errors.Is(err, repository.ErrNotFound):
			return taskAccess{}, false, storeError(c, err, "Member")
		}
	}
	if !access.isMember {
		logger.SecurityLogger.Warn("Forbidden task access", zap.Int64("task_id", taskID), zap.Int64("user_id", id.UserID))
		return taskAccess{}, false, fail(c, fiber.StatusForbidden, "Forbidden")
	}
	return access, true, nil
}

func (h *Handler) GetTask(c *fiber.Ctx, id session.Identity) error {
	access, ok, err := h.loadTask(c, id)
	if !ok {
		return err
	}
	return respond(c, fiber.StatusOK, "Task found", fiber.Map{
		"task": access.task,
		"project": fiber.Map{
			"id":         access.project.ID,
			"name":       access.project.Name,
			"creator_id": access.project.CreatorID,
		},
	})
}

type updateTaskRequest struct {
	Title       *string            `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string            `json:"description" validate:"omitempty,max=5000"`
	Deadline    *string            `json:"deadline"`
	AssigneeID  *int64             `json:"assignee_id" validate:"omitempty,gt=0"`
	Status      *models.TaskStatus `json:"status" validate:"omitempty,oneof=BELUM_SELESAI SELESAI"`
}

// UpdateTask: creator atau member project boleh mengubah isi task, status
// hanya boleh diubah oleh assignee.
func (h *Handler) UpdateTask(c *fiber.Ctx, id session.Identity) error {
	access, ok, err := h.loadTask(c, id)
	if !ok {
		return err
	}
	var req updateTaskRequest
	if ok, err := parseBody(c, &req, "update task"); !ok {
		return err
	}
	if req.Status != nil && !access.isAssignee(id.UserID) {
		logger.SecurityLogger.Warn("Status change by non-assignee", zap.Int64("task_id", access.task.ID), zap.Int64("user_id", id.UserID))
		return fail(c, fiber.StatusForbidden, "Only the assignee can change the task status")
	}

	task := *access.task
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return invalidField(c, "title", "required")
		}
		task.Title = title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Deadline != nil {
		deadline, err := parseDate(*req.Deadline)
		if err != nil {
			return invalidField(c, "deadline", "date")
		}
		task.Deadline = deadline
	}
	if req.Status != nil {
		task.Status = *req.Status
	}
	reassigned := req.AssigneeID != nil && *req.AssigneeID != task.AssigneeID
	if reassigned {
		task.AssigneeID = *req.AssigneeID
	}

	ctx := c.UserContext()
	err = h.deps.Store.WithTx(ctx, func(tx repository.Store) error {
		if reassigned {
			if err := checkAssignees(ctx, tx, []models.Task{task}); err != nil {
				return err
			}
			if _, err := tx.AddMember(ctx, &models.ProjectMember{ProjectID: task.ProjectID, UserID: task.AssigneeID, Role: models.MemberMember}); err != nil {
				return fmt.Errorf("add member: %w", err)
			}
		}
		return tx.UpdateTask(ctx, &task)
	})
	var missingErr *missingUsersError
	if errors.As(err, &missingErr) {
		return missingAssignees(c, missingErr.ids)
	}
	if err != nil {
		return storeError(c, err, "Task")
	}

	if reassigned {
		h.notifyAssigned(id.UserID, []models.Task{task})
	}
	if access.task.Status != models.TaskDone && task.Status == models.TaskDone {
		h.notifyCompleted(access.project, id.UserID, task)
	}
	logger.AuditLogger.Info("Task updated successfully", zap.Int64("task_id", task.ID), zap.Int64("user_id", id.UserID))
	return respond(c, fiber.StatusOK, "Task updated successfully", task)
}

type taskStatusRequest struct {
	Status models.TaskStatus `json:"status" validate:"required,oneof=BELUM_SELESAI SELESAI"`
}

// UpdateTaskStatus is reserved for the assignee.
func (h *Handler) UpdateTaskStatus(c *fiber.Ctx, id session.Identity) error {
	access, ok, err := h.loadTask(c, id)
	if !ok {
		return err
	}
	if !access.isAssignee(id.UserID) {
		logger.SecurityLogger.Warn("Status change by non-assignee", zap.Int64("task_id", access.task.ID), zap.Int64("user_id", id.UserID))
		return fail(c, fiber.StatusForbidden, "Only the assignee can change the task status")
	}
	var req taskStatusRequest
	if ok, err := parseBody(c, &req, "update task status"); !ok {
		return err
	}

	if err := h.deps.Store.UpdateTaskStatus(c.UserContext(), access.task.ID, req.Status); err != nil {
		return storeError(c, err, "Task")
	}
	task := *access.task
	task.Status = req.Status

	if req.Status == models.TaskDone {
		h.notifyCompleted(access.project, id.UserID, task)
	}
	logger.AuditLogger.Info("Task status updated", zap.Int64("task_id", task.ID), zap.String("status", string(task.Status)))
	return respond(c, fiber.StatusOK, "Task status updated successfully", task)
}

// notifyCompleted tells the project creator a task was finished by someone else.
func (h *Handler) notifyCompleted(project *models.Project, actorID int64, task models.Task) {
	if project.CreatorID == actorID {
		return
	}
	h.deps.Hub.Notify(project.CreatorID, websocket.Event{Type: websocket.EventTaskCompleted, Data: task})
}

func (h *Handler) DeleteTask(c *fiber.Ctx, id session.Identity) error {
	access, ok, err := h.loadTask(c, id)
	if !ok {
		return err
	}
	if !access.isCreator {
		logger.SecurityLogger.Warn("Forbidden task delete", zap.Int64("task_id", access.task.ID), zap.Int64("user_id", id.UserID))
		return fail(c, fiber.StatusForbidden, "Only the project creator can delete tasks")
	}
	if err := h.deps.Store.DeleteTask(c.UserContext(), access.task.ID); err != nil {
		return storeError(c, err, "Task")
	}
	logger.AuditLogger.Info("Task deleted successfully", zap.Int64("task_id", access.task.ID))
	return respond(c, fiber.StatusOK, "Task deleted successfully", nil)
}
