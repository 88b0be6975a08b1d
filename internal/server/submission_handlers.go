package server

import (
	"murmur/internal/observability"
	"murmur/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
)

// CreateSubmissionRequest is the request body for creating a submission.
type CreateSubmissionRequest struct {
	Content       string `json:"content"`
	AttachmentURI string `json:"attachment_uri"`
	ParentID      *uint  `json:"parent_id"`
}

// CreateSubmission runs a submission through the moderation pipeline. The
// response always reports the terminal state: published with the new post's
// ID, or quarantined with the classifier's reason.
func (s *Server) CreateSubmission(c *fiber.Ctx) error {
	var req CreateSubmissionRequest
	if err := c.BodyParser(&req); err != nil {
		return respondServiceError(c, errInvalidBody)
	}

	outcome, err := s.submissionService.Submit(c.UserContext(), service.SubmitInput{
		Identity:      callerIdentity(c),
		Content:       req.Content,
		AttachmentURI: req.AttachmentURI,
		ParentID:      req.ParentID,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	observability.AddTraceAttributesToContext(c.UserContext(),
		attribute.String("submission.status", outcome.Status))

	if outcome.Status == service.StatusQuarantined {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": outcome.Status,
			"reason": outcome.Reason,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": outcome.Status,
		"id":     outcome.Post.ID,
		"post":   outcome.Post,
	})
}

// DeleteSubmission deletes a post owned by the caller.
func (s *Server) DeleteSubmission(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	err = s.submissionService.Delete(c.UserContext(), callerIdentity(c), id, s.isAdminSubject(c))
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"id":      id,
	})
}

// GetSubmission returns a single published post.
func (s *Server) GetSubmission(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.submissionService.GetPost(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

// ReportSubmission files a complaint about a published post.
func (s *Server) ReportSubmission(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Reason  string `json:"reason"`
		Details string `json:"details"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respondServiceError(c, errInvalidBody)
	}

	report, err := s.submissionService.ReportPost(c.UserContext(), service.ReportInput{
		Identity: callerIdentity(c),
		PostID:   id,
		Reason:   req.Reason,
		Details:  req.Details,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(report)
}
