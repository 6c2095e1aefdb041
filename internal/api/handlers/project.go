package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tasksync/internal/models"
	"tasksync/internal/report"
	"tasksync/internal/repository"
	"tasksync/internal/session"
	"tasksync/internal/websocket"
	"tasksync/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type taskInput struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"max=5000"`
	Deadline    string `json:"deadline" validate:"required"`
	AssigneeID  int64  `json:"assignee_id" validate:"required,gt=0"`
}

type createProjectRequest struct {
	Name        string      `json:"name" validate:"required,max=255"`
	Description string      `json:"description" validate:"max=5000"`
	StartDate   string      `json:"start_date"`
	Deadline    string      `json:"deadline" validate:"required"`
	Tasks       []taskInput `json:"tasks" validate:"dive"`
}

// missingUsersError is returned from a transaction when assignees vanished.
type missingUsersError struct {
	ids []int64
}

func (e *missingUsersError) Error() string {
	return fmt.Sprintf("users do not exist: %v", e.ids)
}

func missingAssignees(c *fiber.Ctx, ids []int64) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message":           "Assigned users do not exist",
		"missing_assignees": ids,
		"success":           false,
		"status":            fiber.StatusBadRequest,
	})
}

// buildTasks parses task input; the second return is the offending field.
func buildTasks(inputs []taskInput, status models.TaskStatus) ([]models.Task, string) {
	tasks := make([]models.Task, 0, len(inputs))
	for i, in := range inputs {
		deadline, err := parseDate(in.Deadline)
		if err != nil {
			return nil, fmt.Sprintf("tasks[%d].deadline", i)
		}
		tasks = append(tasks, models.Task{
			AssigneeID:  in.AssigneeID,
			Title:       strings.TrimSpace(in.Title),
			Description: in.Description,
			Deadline:    deadline,
			Status:      status,
		})
	}
	return tasks, ""
}

func assigneeIDs(tasks []models.Task) []int64 {
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.AssigneeID)
	}
	return ids
}

func checkAssignees(ctx context.Context, tx repository.Store, tasks []models.Task) error {
	missing, err := tx.MissingUsers(ctx, assigneeIDs(tasks))
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &missingUsersError{ids: missing}
	}
	return nil
}

// addTasks writes the tasks of one project inside tx, giving each new
// assignee a MEMBER row first.
func addTasks(ctx context.Context, tx repository.Store, projectID int64, tasks []models.Task) error {
	for i := range tasks {
		tasks[i].ProjectID = projectID
		if _, err := tx.AddMember(ctx, &models.ProjectMember{ProjectID: projectID, UserID: tasks[i].AssigneeID, Role: models.MemberMember}); err != nil {
			return fmt.Errorf("add member: %w", err)
		}
		if err := tx.CreateTask(ctx, &tasks[i]); err != nil {
			return fmt.Errorf("create task: %w", err)
		}
	}
	return nil
}

func (h *Handler) notifyAssigned(assignerID int64, tasks []models.Task) {
	for _, t := range tasks {
		if t.AssigneeID == assignerID {
			continue
		}
		h.deps.Hub.Notify(t.AssigneeID, websocket.Event{Type: websocket.EventTaskAssigned, Data: t})
	}
}

// CreateProject membuat project beserta task awalnya dalam satu transaksi.
func (h *Handler) CreateProject(c *fiber.Ctx, id session.Identity) error {
	var req createProjectRequest
	if ok, err := parseBody(c, &req, "create project"); !ok {
		return err
	}

	deadline, err := parseDate(req.Deadline)
	if err != nil {
		return invalidField(c, "deadline", "date")
	}
	project := &models.Project{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Deadline:    deadline,
		CreatorID:   id.UserID,
	}
	if req.StartDate != "" {
		start, err := parseDate(req.StartDate)
		if err != nil {
			return invalidField(c, "start_date", "date")
		}
		if deadline.Before(start) {
			return invalidField(c, "deadline", "gtefield=start_date")
		}
		project.StartDate = &start
	}
	tasks, badField := buildTasks(req.Tasks, models.TaskPending)
	if badField != "" {
		return invalidField(c, badField, "date")
	}

	ctx := c.UserContext()
	err = h.deps.Store.WithTx(ctx, func(tx repository.Store) error {
		// semua assignee dicek sebelum ada baris yang ditulis
		if err := checkAssignees(ctx, tx, tasks); err != nil {
			return err
		}
		if err := tx.CreateProject(ctx, project); err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		if _, err := tx.AddMember(ctx, &models.ProjectMember{ProjectID: project.ID, UserID: id.UserID, Role: models.MemberManager}); err != nil {
			return fmt.Errorf("add manager: %w", err)
		}
		return addTasks(ctx, tx, project.ID, tasks)
	})
	var missingErr *missingUsersError
	if errors.As(err, &missingErr) {
		return missingAssignees(c, missingErr.ids)
	}
	if err != nil {
		return storeError(c, err, "Project")
	}

	h.notifyAssigned(id.UserID, tasks)
	logger.AuditLogger.Info("Project created successfully",
		zap.Int64("project_id", project.ID),
		zap.Int64("user_id", id.UserID),
		zap.Int("tasks", len(tasks)),
	)
	return respond(c, fiber.StatusCreated, "Project created successfully", fiber.Map{
		"id":      project.ID,
		"project": project,
		"tasks":   tasks,
	})
}

// ListProjects returns every project the caller is a member of.
func (h *Handler) ListProjects(c *fiber.Ctx, id session.Identity) error {
	ctx := c.UserContext()
	projects, err := h.deps.Store.ListProjectsForUser(ctx, id.UserID)
	if err != nil {
		return storeError(c, err, "Project")
	}
	tasks, err := h.deps.Store.ListTasksByProjects(ctx, projectIDs(projects))
	if err != nil {
		return storeError(c, err, "Task")
	}

	now := h.deps.Clock()
	byProject := report.GroupByProject(tasks)
	summaries := make([]report.ProjectSummary, 0, len(projects))
	for _, p := range projects {
		s := report.Summarize(p, byProject[p.ID], now)
		s.Role = memberRole(p, id.UserID)
		summaries = append(summaries, s)
	}
	return respond(c, fiber.StatusOK, "Projects fetched successfully", summaries)
}

func projectIDs(projects []models.Project) []int64 {
	ids := make([]int64, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	return ids
}

// memberRole: the creator is the only MANAGER of a project.
func memberRole(p models.Project, userID int64) models.MemberRole {
	if p.CreatorID == userID {
		return models.MemberManager
	}
	return models.MemberMember
}

// loadProject fetches the project and checks the caller may see it. When
// the bool is false the response has been written.
func (h *Handler) loadProject(c *fiber.Ctx, id session.Identity, projectID int64) (*models.Project, bool, error) {
	ctx := c.UserContext()
	project, err := h.deps.Store.GetProject(ctx, projectID)
	if err != nil {
		return nil, false, storeError(c, err, "Project")
	}
	if project.CreatorID == id.UserID {
		return project, true, nil
	}
	if _, err := h.deps.Store.GetMember(ctx, projectID, id.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.SecurityLogger.Warn("Forbidden project access", zap.Int64("project_id", projectID), zap.Int64("user_id", id.UserID))
			return nil, false, fail(c, fiber.StatusForbidden, "Forbidden")
		}
		return nil, false, storeError(c, err, "Member")
	}
	return project, true, nil
}

// loadOwnedProject is loadProject restricted to the creator.
func (h *Handler) loadOwnedProject(c *fiber.Ctx, id session.Identity) (*models.Project, bool, error) {
	projectID, ok := paramID(c)
	if !ok {
		return nil, false, fail(c, fiber.StatusBadRequest, "Invalid project ID")
	}
	project, err := h.deps.Store.GetProject(c.UserContext(), projectID)
	if err != nil {
		return nil, false, storeError(c, err, "Project")
	}
	if project.CreatorID != id.UserID {
		logger.SecurityLogger.Warn("Forbidden project change", zap.Int64("project_id", projectID), zap.Int64("user_id", id.UserID))
		return nil, false, fail(c, fiber.StatusForbidden, "Only the project creator can do this")
	}
	return project, true, nil
}

func (h *Handler) GetProject(c *fiber.Ctx, id session.Identity) error {
	projectID, ok := paramID(c)
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid project ID")
	}
	project, ok, err := h.loadProject(c, id, projectID)
	if !ok {
		return err
	}

	ctx := c.UserContext()
	members, err := h.deps.Store.ListMembers(ctx, project.ID)
	if err != nil {
		return storeError(c, err, "Member")
	}
	tasks, err := h.deps.Store.ListTasksByProject(ctx, project.ID)
	if err != nil {
		return storeError(c, err, "Task")
	}

	summary := report.Summarize(*project, tasks, h.deps.Clock())
	summary.Role = memberRole(*project, id.UserID)
	return respond(c, fiber.StatusOK, "Project found", fiber.Map{
		"project": summary,
		"members": members,
		"tasks":   tasks,
	})
}

type updateProjectRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	StartDate   *string `json:"start_date"`
	Deadline    *string `json:"deadline"`
}

func (h *Handler) UpdateProject(c *fiber.Ctx, id session.Identity) error {
	project, ok, err := h.loadOwnedProject(c, id)
	if !ok {
		return err
	}
	var req updateProjectRequest
	if ok, err := parseBody(c, &req, "update project"); !ok {
		return err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return invalidField(c, "name", "required")
		}
		project.Name = name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.StartDate != nil {
		if *req.StartDate == "" {
			project.StartDate = nil
		} else {
			start, err := parseDate(*req.StartDate)
			if err != nil {
				return invalidField(c, "start_date", "date")
			}
			project.StartDate = &start
		}
	}
	if req.Deadline != nil {
		deadline, err := parseDate(*req.Deadline)
		if err != nil {
			return invalidField(c, "deadline", "date")
		}
		project.Deadline = deadline
	}
	if project.StartDate != nil && project.Deadline.Before(*project.StartDate) {
		return invalidField(c, "deadline", "gtefield=start_date")
	}

	if err := h.deps.Store.UpdateProject(c.UserContext(), project); err != nil {
		return storeError(c, err, "Project")
	}
	logger.AuditLogger.Info("Project updated successfully", zap.Int64("project_id", project.ID))
	return respond(c, fiber.StatusOK, "Project updated successfully", project)
}

// DeleteProject menghapus project; member dan task ikut terhapus.
func (h *Handler) DeleteProject(c *fiber.Ctx, id session.Identity) error {
	project, ok, err := h.loadOwnedProject(c, id)
	if !ok {
		return err
	}
	if err := h.deps.Store.DeleteProject(c.UserContext(), project.ID); err != nil {
		return storeError(c, err, "Project")
	}
	logger.AuditLogger.Info("Project deleted successfully", zap.Int64("project_id", project.ID), zap.Int64("user_id", id.UserID))
	return respond(c, fiber.StatusOK, "Project deleted successfully", nil)
}

// AddProjectTask lets the creator add one task after the project exists.
func (h *Handler) AddProjectTask(c *fiber.Ctx, id session.Identity) error {
	project, ok, err := h.loadOwnedProject(c, id)
	if !ok {
		return err
	}
	var req taskInput
	if ok, err := parseBody(c, &req, "add task"); !ok {
		return err
	}
	tasks, badField := buildTasks([]taskInput{req}, models.TaskPending)
	if badField != "" {
		return invalidField(c, "deadline", "date")
	}

	ctx := c.UserContext()
	err = h.deps.Store.WithTx(ctx, func(tx repository.Store) error {
		if err := checkAssignees(ctx, tx, tasks); err != nil {
			return err
		}
		return addTasks(ctx, tx, project.ID, tasks)
	})
	var missingErr *missingUsersError
	if errors.As(err, &missingErr) {
		return missingAssignees(c, missingErr.ids)
	}
	if err != nil {
		return storeError(c, err, "Task")
	}

	h.notifyAssigned(id.UserID, tasks)
	logger.AuditLogger.Info("Task created successfully", zap.Int64("task_id", tasks[0].ID), zap.Int64("project_id", project.ID))
	return respond(c, fiber.StatusCreated, "Task created successfully", tasks[0])
}
