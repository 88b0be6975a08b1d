package server

import (
	"errors"

	"murmur/internal/identity"
	"murmur/internal/models"
	"murmur/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// errInvalidBody is returned when the request body cannot be parsed.
var errInvalidBody = models.NewValidationError("Invalid request body")

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const (
	maxPaginationLimit = 100
)

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid ID"))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// callerIdentity reconstructs the verified identity from Fiber locals set by
// AuthRequired.
func callerIdentity(c *fiber.Ctx) identity.Identity {
	subjectID, _ := c.Locals("subjectID").(string)
	label, _ := c.Locals("displayLabel").(string)
	if label == "" {
		label = identity.AnonymousLabel
	}
	return identity.Identity{SubjectID: subjectID, DisplayLabel: label}
}

// isAdminSubject reports whether the caller is in the configured admin list.
func (s *Server) isAdminSubject(c *fiber.Ctx) bool {
	subjectID, _ := c.Locals("subjectID").(string)
	_, ok := s.adminSubjects[subjectID]
	return ok
}

// statusForError maps an AppError code to its HTTP status.
func statusForError(err error) int {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeClassifierFailed:
		return fiber.StatusServiceUnavailable
	case models.CodeValidation,
		models.CodeEmptyContent,
		models.CodeContentTooLong,
		models.CodeAttachmentTooLarge,
		models.CodeAttachmentNotImage:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// respondServiceError writes the response for an error returned by the
// submission service. Server-side failures are recorded on the request span.
func respondServiceError(c *fiber.Ctx, err error) error {
	status := statusForError(err)
	if status >= fiber.StatusInternalServerError {
		observability.RecordErrorInContext(c.UserContext(), err)
	}
	return models.RespondWithError(c, status, err)
}
