package handlers

import (
	"errors"
	"strings"

	"tasksync/internal/models"
	"tasksync/internal/repository"
	"tasksync/internal/session"
	"tasksync/internal/websocket"
	"tasksync/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type friendRequest struct {
	UserID int64  `json:"user_id" validate:"omitempty,gt=0"`
	Email  string `json:"email" validate:"omitempty,email"`
}

// CreateFriendship mengirim permintaan pertemanan. Pasangan yang sama hanya
// boleh punya satu baris, ke arah mana pun.
func (h *Handler) CreateFriendship(c *fiber.Ctx, id session.Identity) error {
	var req friendRequest
	if ok, err := parseBody(c, &req, "create friendship"); !ok {
		return err
	}
	if req.UserID == 0 && req.Email == "" {
		return invalidField(c, "user_id", "required_without=email")
	}
	ctx := c.UserContext()

	var (
		target *models.User
		err    error
	)
	if req.UserID != 0 {
		target, err = h.deps.Store.GetUserByID(ctx, req.UserID)
	} else {
		target, err = h.deps.Store.GetUserByEmail(ctx, req.Email)
	}
	if err != nil {
		return storeError(c, err, "User")
	}
	if target.ID == id.UserID {
		return fail(c, fiber.StatusBadRequest, "You cannot send a friend request to yourself")
	}

	if _, err := h.deps.Store.FindFriendship(ctx, id.UserID, target.ID); err == nil {
		logger.SecurityLogger.Warn("Duplicate friend request", zap.Int64("from", id.UserID), zap.Int64("to", target.ID))
		return fail(c, fiber.StatusConflict, "A friend request between you already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return storeError(c, err, "Friendship")
	}

	f := &models.Friendship{RequesterID: id.UserID, AddresseeID: target.ID, Status: models.FriendshipPending}
	if err := h.deps.Store.CreateFriendship(ctx, f); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fail(c, fiber.StatusConflict, "A friend request between you already exists")
		}
		return storeError(c, err, "Friendship")
	}

	h.deps.Hub.Notify(target.ID, websocket.Event{Type: websocket.EventFriendRequest, Data: fiber.Map{
		"friendship_id": f.ID,
		"from":          models.UserSummary{ID: id.UserID, Name: id.Name, Email: id.Email},
	}})
	logger.AuditLogger.Info("Friend request sent", zap.Int64("friendship_id", f.ID))
	return respond(c, fiber.StatusCreated, "Friend request sent", f)
}

type friendView struct {
	models.Friendship
	Direction string             `json:"direction"`
	Friend    models.UserSummary `json:"friend"`
}

// ListFriendships returns the caller's requests and friends, ?status= filters.
func (h *Handler) ListFriendships(c *fiber.Ctx, id session.Identity) error {
	status := models.FriendshipStatus(strings.ToUpper(c.Query("status")))
	if status != "" && status != models.FriendshipPending && status != models.FriendshipAccepted {
		return invalidField(c, "status", "oneof=PENDING ACCEPTED")
	}

	ctx := c.UserContext()
	friendships, err := h.deps.Store.ListFriendships(ctx, id.UserID)
	if err != nil {
		return storeError(c, err, "Friendship")
	}

	views := make([]friendView, 0, len(friendships))
	for _, f := range friendships {
		if status != "" && f.Status != status {
			continue
		}
		other, err := h.deps.Store.GetUserByID(ctx, f.Other(id.UserID))
		if err != nil {
			return storeError(c, err, "User")
		}
		direction := "outgoing"
		if f.AddresseeID == id.UserID {
			direction = "incoming"
		}
		views = append(views, friendView{
			Friendship: f,
			Direction:  direction,
			Friend:     models.UserSummary{ID: other.ID, Name: other.Name, Email: other.Email},
		})
	}
	return respond(c, fiber.StatusOK, "Friendships fetched successfully", views)
}

func (h *Handler) loadFriendship(c *fiber.Ctx, id session.Identity) (*models.Friendship, bool, error) {
	fid, ok := paramID(c)
	if !ok {
		return nil, false, fail(c, fiber.StatusBadRequest, "Invalid friendship ID")
	}
	f, err := h.deps.Store.GetFriendship(c.UserContext(), fid)
	if err != nil {
		return nil, false, storeError(c, err, "Friendship")
	}
	if !f.Involves(id.UserID) {
		logger.SecurityLogger.Warn("Forbidden friendship access", zap.Int64("friendship_id", fid), zap.Int64("user_id", id.UserID))
		return nil, false, fail(c, fiber.StatusForbidden, "Forbidden")
	}
	return f, true, nil
}

// AcceptFriendship can only be done by the addressee.
func (h *Handler) AcceptFriendship(c *fiber.Ctx, id session.Identity) error {
	f, ok, err := h.loadFriendship(c, id)
	if !ok {
		return err
	}
	if f.AddresseeID != id.UserID {
		return fail(c, fiber.StatusForbidden, "Only the recipient can accept this request")
	}
	if f.Status == models.FriendshipAccepted {
		return fail(c, fiber.StatusConflict, "Friend request already accepted")
	}

	now := h.deps.Clock()
	if err := h.deps.Store.AcceptFriendship(c.UserContext(), f.ID, now); err != nil {
		// diterima oleh request lain di antara load dan update
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, fiber.StatusConflict, "Friend request already accepted")
		}
		return storeError(c, err, "Friendship")
	}
	f.Status = models.FriendshipAccepted
	f.AcceptedAt = &now

	h.deps.Hub.Notify(f.RequesterID, websocket.Event{Type: websocket.EventFriendAccepted, Data: fiber.Map{
		"friendship_id": f.ID,
		"by":            models.UserSummary{ID: id.UserID, Name: id.Name, Email: id.Email},
	}})
	logger.AuditLogger.Info("Friend request accepted", zap.Int64("friendship_id", f.ID))
	return respond(c, fiber.StatusOK, "Friend request accepted", f)
}

// DeleteFriendship rejects, cancels or unfriends depending on who calls.
func (h *Handler) DeleteFriendship(c *fiber.Ctx, id session.Identity) error {
	f, ok, err := h.loadFriendship(c, id)
	if !ok {
		return err
	}
	if err := h.deps.Store.DeleteFriendship(c.UserContext(), f.ID); err != nil {
		return storeError(c, err, "Friendship")
	}
	logger.AuditLogger.Info("Friendship removed", zap.Int64("friendship_id", f.ID), zap.Int64("user_id", id.UserID))
	return respond(c, fiber.StatusOK, "Friendship removed", nil)
}
