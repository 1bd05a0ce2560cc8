package server

import (
	"webcarros/internal/middleware"
	"webcarros/internal/notify"
	"webcarros/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// NotificationsUpgrade rejects plain HTTP requests to the notifications socket.
func (s *Server) NotificationsUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if middleware.CurrentClient(c) == nil {
		return fiber.ErrUnauthorized
	}
	return c.Next()
}

// NotificationsHandler streams the client session's toasts over a WebSocket.
func (s *Server) NotificationsHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		client, ok := conn.Locals("client").(*session.Client)
		if !ok || client == nil {
			_ = conn.Close()
			return
		}
		notify.Serve(conn, client.Toasts, client.ID)
	})
}
