package handlers

import (
	"tasksync/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const wsUserKey = "ws_user_id"

// WebsocketUpgrade only lets websocket handshakes through and pins the
// caller's id for the connection.
func (h *Handler) WebsocketUpgrade(c *fiber.Ctx, id session.Identity) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals(wsUserKey, id.UserID)
	return c.Next()
}

// Websocket streams notification events to the connected user.
func (h *Handler) Websocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals(wsUserKey).(int64)
		if !ok || userID == 0 {
			_ = conn.Close()
			return
		}
		h.deps.Hub.Serve(userID, conn)
	})
}
