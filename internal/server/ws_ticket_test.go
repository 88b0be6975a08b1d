package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"murmur/internal/identity"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueWSTicket(t *testing.T) {
	_, app, mr := newTestServer(t, stubGateway{})
	token := bearerFor(t, "subject-1", "casey@example.com")

	req := httptest.NewRequest(http.MethodPost, "/api/ws/ticket", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	ticket, _ := body["ticket"].(string)
	require.NotEmpty(t, ticket)
	assert.Equal(t, float64(30), body["expires_in_seconds"])

	// The ticket carries the verified identity, not the raw token.
	raw, err := mr.Get(fmt.Sprintf("ws_ticket:%s", ticket))
	require.NoError(t, err)
	var ident identity.Identity
	require.NoError(t, json.Unmarshal([]byte(raw), &ident))
	assert.Equal(t, "subject-1", ident.SubjectID)
	assert.Equal(t, "casey@example.com", ident.DisplayLabel)
}

func TestAuthRequired_WSTicket(t *testing.T) {
	s, app, mr := newTestServer(t, stubGateway{})
	ctx := context.Background()

	// Extra routes exercising AuthRequired on and off the WS path.
	app.Get("/api/ws/test", s.AuthRequired(), func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"subjectID": c.Locals("subjectID"),
			"wsTicket":  c.Locals("wsTicket"),
		})
	})
	app.Get("/api/other", s.AuthRequired(), func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"subjectID": c.Locals("subjectID"),
		})
	})

	storeTicket := func(ticket, subjectID string) {
		payload, err := json.Marshal(identity.Identity{
			SubjectID:    subjectID,
			DisplayLabel: "Anonymous",
		})
		require.NoError(t, err)
		require.NoError(t, s.redis.Set(ctx,
			fmt.Sprintf("ws_ticket:%s", ticket), payload, time.Minute).Err())
	}

	t.Run("ticket consumed from Redis but cached in-process", func(t *testing.T) {
		storeTicket("ticket-1", "subject-9")

		resp, err := app.Test(httptest.NewRequest(http.MethodGet,
			"/api/ws/test?ticket=ticket-1", nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "subject-9", body["subjectID"])
		assert.Equal(t, "ticket-1", body["wsTicket"])

		// Consumed atomically with GETDEL.
		assert.False(t, mr.Exists("ws_ticket:ticket-1"))

		// But cached in-process: Fiber's upgrade handshake re-runs the
		// middleware chain, so the second pass must still authenticate.
		s.consumedTicketsMu.Lock()
		_, cached := s.consumedTickets["ticket-1"]
		s.consumedTicketsMu.Unlock()
		assert.True(t, cached)

		resp, err = app.Test(httptest.NewRequest(http.MethodGet,
			"/api/ws/test?ticket=ticket-1", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("invalid ticket on WS path is rejected", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet,
			"/api/ws/test?ticket=never-issued", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("invalid ticket off the WS path falls back to Bearer", func(t *testing.T) {
		token := bearerFor(t, "subject-2", "")
		req := httptest.NewRequest(http.MethodGet, "/api/other?ticket=never-issued", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "subject-2", body["subjectID"])
	})

	t.Run("stale entries are swept when a new ticket is redeemed", func(t *testing.T) {
		storeTicket("ticket-stale", "subject-9")
		resp, err := app.Test(httptest.NewRequest(http.MethodGet,
			"/api/ws/test?ticket=ticket-stale", nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()

		// Age the cached entry past the grace window, simulating an upgrade
		// that never completed.
		s.consumedTicketsMu.Lock()
		entry := s.consumedTickets["ticket-stale"]
		entry.consumeAt = entry.consumeAt.Add(-2 * wsTicketGrace)
		s.consumedTickets["ticket-stale"] = entry
		s.consumedTicketsMu.Unlock()

		storeTicket("ticket-fresh", "subject-9")
		resp, err = app.Test(httptest.NewRequest(http.MethodGet,
			"/api/ws/test?ticket=ticket-fresh", nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()

		s.consumedTicketsMu.Lock()
		_, staleKept := s.consumedTickets["ticket-stale"]
		_, freshKept := s.consumedTickets["ticket-fresh"]
		s.consumedTicketsMu.Unlock()
		assert.False(t, staleKept, "expired entry should have been swept")
		assert.True(t, freshKept)
	})

	t.Run("consumeWSTicket retires the in-process entry", func(t *testing.T) {
		storeTicket("ticket-2", "subject-9")

		resp, err := app.Test(httptest.NewRequest(http.MethodGet,
			"/api/ws/test?ticket=ticket-2", nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()

		s.consumeWSTicket(ctx, "ticket-2")

		resp, err = app.Test(httptest.NewRequest(http.MethodGet,
			"/api/ws/test?ticket=ticket-2", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	})
}
