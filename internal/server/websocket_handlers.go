package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"murmur/internal/middleware"
	"murmur/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// wsTicketTTL bounds how long an issued ticket stays redeemable.
const wsTicketTTL = 30 * time.Second

// IssueWSTicket issues a short-lived single-use ticket for the WebSocket
// endpoint. Browsers cannot set an Authorization header on the upgrade
// request, so the ticket carries the verified identity instead.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(fmt.Errorf("websocket tickets require redis")))
	}

	ident := callerIdentity(c)
	payload, err := json.Marshal(ident)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	ticket := uuid.NewString()
	key := fmt.Sprintf("ws_ticket:%s", ticket)
	if err := s.redis.Set(c.Context(), key, payload, wsTicketTTL).Err(); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ticket":             ticket,
		"expires_in_seconds": int(wsTicketTTL.Seconds()),
	})
}

// WebsocketHandler upgrades the connection and registers it as a live feed
// subscriber. Subscribers receive every published and deleted post event.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		subjectID, _ := conn.Locals("subjectID").(string)
		if subjectID == "" {
			log.Printf("WebSocket: unauthenticated connection attempt")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		// The upgrade completed; retire the handshake ticket.
		s.consumeWSTicket(context.Background(), conn.Locals("wsTicket"))

		if s.feedHub == nil {
			_ = conn.Close()
			return
		}

		client, err := s.feedHub.Register(subjectID, conn)
		if err != nil {
			log.Printf("WebSocket: failed to register subscriber: %v", err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}
