package server

import (
	"murmur/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetFeed returns the public feed of top-level posts, newest first.
func (s *Server) GetFeed(c *fiber.Ctx) error {
	p := parsePagination(c, 20)

	posts, err := s.submissionService.ListFeed(c.UserContext(), service.ListInput{
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

// GetComments returns a post's comments, oldest first.
func (s *Server) GetComments(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	p := parsePagination(c, 50)

	comments, err := s.submissionService.ListComments(c.UserContext(), id, service.ListInput{
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(comments)
}
