package server

import (
	"murmur/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetQuarantine returns quarantined submissions for manual review.
func (s *Server) GetQuarantine(c *fiber.Ctx) error {
	p := parsePagination(c, 20)

	items, err := s.submissionService.ListQuarantine(c.UserContext(), service.ListInput{
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(items)
}

// GetReports returns filed reports, optionally filtered by ?status=.
func (s *Server) GetReports(c *fiber.Ctx) error {
	p := parsePagination(c, 20)
	status := c.Query("status")

	reports, err := s.submissionService.ListReports(c.UserContext(), status, service.ListInput{
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(reports)
}

// ResolveReport updates a report's review status.
func (s *Server) ResolveReport(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respondServiceError(c, errInvalidBody)
	}

	if err := s.submissionService.ResolveReport(c.UserContext(), id, req.Status); err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"id":      id,
	})
}
