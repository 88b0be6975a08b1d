// Package seed provides helpers to create test and demo data for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"murmur/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumAuthors  int
	NumPosts    int
	ShouldClean bool
}

// Seeder populates the database with plausible feed data.
type Seeder struct {
	db *gorm.DB
	r  *rand.Rand
}

// NewSeeder creates a new Seeder bound to the provided Gorm DB.
func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		db: db,
		r:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ClearAll removes all seeded data.
func (s *Seeder) ClearAll() error {
	for _, model := range []any{&models.Report{}, &models.QuarantinedItem{}, &models.Post{}} {
		if err := s.db.Unscoped().Where("1 = 1").Delete(model).Error; err != nil {
			return fmt.Errorf("failed to clear table: %w", err)
		}
	}
	log.Println("Cleared existing data")
	return nil
}

// Seed populates the database with test data
func (s *Seeder) Seed(opts Options) error {
	log.Printf("Seeding %d authors and %d posts...", opts.NumAuthors, opts.NumPosts)

	if opts.ShouldClean {
		if err := s.ClearAll(); err != nil {
			return err
		}
	}

	authors := s.buildAuthors(opts.NumAuthors)

	posts, err := s.createPosts(authors, opts.NumPosts)
	if err != nil {
		return fmt.Errorf("failed to create posts: %w", err)
	}
	log.Printf("Created %d posts", len(posts))

	comments, err := s.createComments(authors, posts)
	if err != nil {
		return fmt.Errorf("failed to create comments: %w", err)
	}
	log.Printf("Created %d comments", comments)

	quarantined, err := s.createQuarantinedItems(authors, opts.NumPosts/10)
	if err != nil {
		return fmt.Errorf("failed to create quarantined items: %w", err)
	}
	log.Printf("Created %d quarantined items", quarantined)

	reports, err := s.createReports(authors, posts)
	if err != nil {
		return fmt.Errorf("failed to create reports: %w", err)
	}
	log.Printf("Created %d reports", reports)

	return nil
}

type author struct {
	subjectID string
	label     string
}

// buildAuthors fabricates bearer subjects. Roughly a third present no email
// claim and show up as anonymous.
func (s *Seeder) buildAuthors(n int) []author {
	authors := make([]author, 0, n)
	for i := 0; i < n; i++ {
		a := author{subjectID: gofakeit.UUID(), label: gofakeit.Email()}
		if s.r.Intn(3) == 0 {
			a.label = "Anonymous"
		}
		authors = append(authors, a)
	}
	return authors
}

func (s *Seeder) createPosts(authors []author, n int) ([]*models.Post, error) {
	posts := make([]*models.Post, 0, n)
	for i := 0; i < n; i++ {
		a := authors[s.r.Intn(len(authors))]
		post := &models.Post{
			Content:     gofakeit.Sentence(3 + s.r.Intn(12)),
			AuthorID:    a.subjectID,
			AuthorLabel: a.label,
			CreatedAt:   s.spreadTime(30),
		}
		if s.r.Intn(5) == 0 {
			post.AttachmentURI = fmt.Sprintf("https://picsum.photos/seed/%s/800/800", gofakeit.UUID())
		}
		if err := s.db.Create(post).Error; err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (s *Seeder) createComments(authors []author, posts []*models.Post) (int, error) {
	count := 0
	for _, post := range posts {
		for i := 0; i < s.r.Intn(5); i++ {
			a := authors[s.r.Intn(len(authors))]
			parentID := post.ID
			comment := &models.Post{
				Content:     gofakeit.Sentence(2 + s.r.Intn(10)),
				AuthorID:    a.subjectID,
				AuthorLabel: a.label,
				ParentID:    &parentID,
				CreatedAt:   post.CreatedAt.Add(time.Duration(1+s.r.Intn(600)) * time.Minute),
			}
			if err := s.db.Create(comment).Error; err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

var quarantineReasons = []string{
	"Contains harassment directed at a named individual",
	"Hate speech targeting a protected group",
	"Describes self-harm in encouraging terms",
	"Explicit sexual content",
	"Incitement to violence",
}

func (s *Seeder) createQuarantinedItems(authors []author, n int) (int, error) {
	for i := 0; i < n; i++ {
		a := authors[s.r.Intn(len(authors))]
		item := &models.QuarantinedItem{
			Content:     gofakeit.Sentence(4 + s.r.Intn(10)),
			AuthorID:    a.subjectID,
			AuthorLabel: a.label,
			Reason:      quarantineReasons[s.r.Intn(len(quarantineReasons))],
			FlaggedAt:   s.spreadTime(30),
		}
		if err := s.db.Create(item).Error; err != nil {
			return i, err
		}
	}
	return n, nil
}

func (s *Seeder) createReports(authors []author, posts []*models.Post) (int, error) {
	count := 0
	for _, post := range posts {
		if s.r.Intn(10) != 0 {
			continue
		}
		a := authors[s.r.Intn(len(authors))]
		report := &models.Report{
			PostID:     post.ID,
			ReporterID: a.subjectID,
			Reason:     gofakeit.RandomString([]string{"spam", "abuse", "other"}),
			Details:    gofakeit.Sentence(5),
			Status:     models.ReportStatusOpen,
			CreatedAt:  post.CreatedAt.Add(time.Duration(1+s.r.Intn(48)) * time.Hour),
		}
		if err := s.db.Create(report).Error; err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// spreadTime returns a timestamp up to maxDays in the past so feeds look
// organically aged.
func (s *Seeder) spreadTime(maxDays int) time.Time {
	daysBack := s.r.Intn(maxDays)
	hoursBack := s.r.Intn(24)
	minsBack := s.r.Intn(60)
	return time.Now().UTC().
		Add(-time.Duration(daysBack)*24*time.Hour -
			time.Duration(hoursBack)*time.Hour -
			time.Duration(minsBack)*time.Minute)
}
