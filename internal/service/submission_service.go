package service

import (
	"context"
	"errors"
	"time"

	"murmur/internal/classifier"
	"murmur/internal/identity"
	"murmur/internal/middleware"
	"murmur/internal/models"
	"murmur/internal/observability"
	"murmur/internal/repository"
	"murmur/internal/validation"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// Submission outcomes.
const (
	StatusPublished   = "published"
	StatusQuarantined = "quarantined"
)

// FeedEventPublisher notifies live feed subscribers about published and
// deleted posts. Publishing is best-effort; a failed notification never
// fails the request.
type FeedEventPublisher interface {
	PublishPostCreated(ctx context.Context, post *models.Post)
	PublishPostDeleted(ctx context.Context, postID uint, parentID *uint)
}

// SubmissionService runs every submission through the same path: validate,
// classify, then persist to exactly one of the two terminal states.
type SubmissionService struct {
	postRepo       repository.PostRepository
	quarantineRepo repository.QuarantineRepository
	reportRepo     repository.ReportRepository
	gateway        classifier.Gateway
	events         FeedEventPublisher
	failOpen       bool
}

// SubmitInput carries a caller-authenticated submission into the pipeline.
type SubmitInput struct {
	Identity      identity.Identity
	Content       string
	AttachmentURI string
	ParentID      *uint
}

// SubmissionOutcome is the terminal state of a submission. Post is set only
// when Status is StatusPublished; Reason only when StatusQuarantined.
type SubmissionOutcome struct {
	Status string
	Post   *models.Post
	Reason string
}

// ListInput bounds a feed or comment listing.
type ListInput struct {
	Limit  int
	Offset int
}

// ReportInput is a reader's complaint about a published post.
type ReportInput struct {
	Identity identity.Identity
	PostID   uint
	Reason   string
	Details  string
}

func NewSubmissionService(
	postRepo repository.PostRepository,
	quarantineRepo repository.QuarantineRepository,
	reportRepo repository.ReportRepository,
	gateway classifier.Gateway,
	events FeedEventPublisher,
	failOpen bool,
) *SubmissionService {
	return &SubmissionService{
		postRepo:       postRepo,
		quarantineRepo: quarantineRepo,
		reportRepo:     reportRepo,
		gateway:        gateway,
		events:         events,
		failOpen:       failOpen,
	}
}

// Submit runs the full pipeline. Validation failures return before any
// classifier call; classifier failures are retried once and then resolved by
// the configured failure policy.
func (s *SubmissionService) Submit(ctx context.Context, in SubmitInput) (*SubmissionOutcome, error) {
	valid, err := validation.Validate(validation.Submission{
		Content:       in.Content,
		AttachmentURI: in.AttachmentURI,
		ParentID:      in.ParentID,
	})
	if err != nil {
		return nil, err
	}

	if valid.ParentID != nil {
		parent, err := s.postRepo.GetByID(ctx, *valid.ParentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, models.NewNotFoundError("Post", *valid.ParentID)
			}
			return nil, models.NewInternalError(err)
		}
		// Comments attach to top-level posts only; no nested threads.
		if parent.ParentID != nil {
			return nil, models.NewValidationError("Comments can only be made on top-level posts")
		}
	}

	verdict, err := s.classify(ctx, valid.Content)
	if err != nil {
		if s.failOpen {
			middleware.Logger.WarnContext(ctx, "classifier unavailable, publishing unmoderated",
				"error", err)
			observability.ClassifierFailures.WithLabelValues(failureKind(err), "open").Inc()
			verdict = classifier.Verdict{}
		} else {
			observability.ClassifierFailures.WithLabelValues(failureKind(err), "closed").Inc()
			return nil, models.NewClassifierError(err)
		}
	}

	if verdict.Violating {
		item := &models.QuarantinedItem{
			Content:       valid.Content,
			AttachmentURI: valid.AttachmentURI,
			AuthorID:      in.Identity.SubjectID,
			AuthorLabel:   in.Identity.DisplayLabel,
			Reason:        verdict.Reason,
		}
		if err := s.quarantineRepo.Create(ctx, item); err != nil {
			return nil, models.NewInternalError(err)
		}
		observability.ModerationVerdicts.WithLabelValues(StatusQuarantined).Inc()
		middleware.Logger.InfoContext(ctx, "submission quarantined",
			"quarantine_id", item.ID, "reason", verdict.Reason)
		return &SubmissionOutcome{Status: StatusQuarantined, Reason: verdict.Reason}, nil
	}

	post := &models.Post{
		Content:       valid.Content,
		AttachmentURI: valid.AttachmentURI,
		AuthorID:      in.Identity.SubjectID,
		AuthorLabel:   in.Identity.DisplayLabel,
		ParentID:      valid.ParentID,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, models.NewInternalError(err)
	}
	observability.ModerationVerdicts.WithLabelValues(StatusPublished).Inc()

	if s.events != nil {
		s.events.PublishPostCreated(ctx, post)
	}

	return &SubmissionOutcome{Status: StatusPublished, Post: post}, nil
}

// classify calls the gateway, retrying once on transport failure. Malformed
// responses are not retried: the model answered, it just answered garbage.
func (s *SubmissionService) classify(ctx context.Context, content string) (classifier.Verdict, error) {
	span, ctx := observability.NewSpan(ctx, "classifier.classify")
	defer span.End()

	start := time.Now()
	defer func() {
		observability.ClassifierLatency.Observe(time.Since(start).Seconds())
	}()

	verdict, err := s.gateway.Classify(ctx, content)
	if err != nil && errors.Is(err, classifier.ErrUnavailable) && ctx.Err() == nil {
		span.AddAttributes(attribute.Bool("classifier.retried", true))
		verdict, err = s.gateway.Classify(ctx, content)
	}
	if err != nil {
		span.SetError(err)
		return verdict, err
	}
	span.AddAttributes(attribute.Bool("classifier.violating", verdict.Violating))
	return verdict, nil
}

func failureKind(err error) string {
	if errors.Is(err, classifier.ErrMalformedResponse) {
		return "malformed"
	}
	return "unavailable"
}

// Delete removes a post after verifying the caller owns it. Admins may delete
// any post. The read happens before the delete so a missing post and a
// foreign post produce different errors.
func (s *SubmissionService) Delete(ctx context.Context, ident identity.Identity, postID uint, isAdmin bool) error {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Post", postID)
		}
		return models.NewInternalError(err)
	}

	if post.AuthorID != ident.SubjectID && !isAdmin {
		return models.NewForbiddenError("You can only delete your own posts")
	}

	if err := s.postRepo.Delete(ctx, postID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Post", postID)
		}
		return models.NewInternalError(err)
	}

	if s.events != nil {
		s.events.PublishPostDeleted(ctx, postID, post.ParentID)
	}
	return nil
}

// GetPost returns a single published post.
func (s *SubmissionService) GetPost(ctx context.Context, postID uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", postID)
		}
		return nil, models.NewInternalError(err)
	}
	return post, nil
}

// ListFeed returns top-level posts, newest first.
func (s *SubmissionService) ListFeed(ctx context.Context, in ListInput) ([]*models.Post, error) {
	posts, err := s.postRepo.ListFeed(ctx, in.Limit, in.Offset)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// ListComments returns a post's comments, oldest first. The parent must
// exist; comments on a deleted post 404 like the post itself.
func (s *SubmissionService) ListComments(ctx context.Context, postID uint, in ListInput) ([]*models.Post, error) {
	if _, err := s.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	posts, err := s.postRepo.ListByParent(ctx, postID, in.Limit, in.Offset)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// ReportPost files a complaint about a published post.
func (s *SubmissionService) ReportPost(ctx context.Context, in ReportInput) (*models.Report, error) {
	if in.Reason == "" {
		return nil, models.NewValidationError("Reason is required")
	}
	if _, err := s.GetPost(ctx, in.PostID); err != nil {
		return nil, err
	}

	report := &models.Report{
		PostID:     in.PostID,
		ReporterID: in.Identity.SubjectID,
		Reason:     in.Reason,
		Details:    in.Details,
		Status:     models.ReportStatusOpen,
	}
	if err := s.reportRepo.Create(ctx, report); err != nil {
		return nil, models.NewInternalError(err)
	}
	return report, nil
}

// ListQuarantine returns quarantined items for manual review, newest first.
func (s *SubmissionService) ListQuarantine(ctx context.Context, in ListInput) ([]*models.QuarantinedItem, error) {
	items, err := s.quarantineRepo.List(ctx, in.Limit, in.Offset)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return items, nil
}

// ListReports returns filed reports, optionally filtered by status.
func (s *SubmissionService) ListReports(ctx context.Context, status string, in ListInput) ([]*models.Report, error) {
	reports, err := s.reportRepo.List(ctx, status, in.Limit, in.Offset)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return reports, nil
}

// ResolveReport updates a report's review status.
func (s *SubmissionService) ResolveReport(ctx context.Context, reportID uint, status string) error {
	switch status {
	case models.ReportStatusResolved, models.ReportStatusDismissed, models.ReportStatusOpen:
	default:
		return models.NewValidationError("Invalid report status")
	}
	if err := s.reportRepo.UpdateStatus(ctx, reportID, status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Report", reportID)
		}
		return models.NewInternalError(err)
	}
	return nil
}
