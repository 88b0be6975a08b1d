// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"

	"murmur/internal/cache"
	"murmur/internal/models"
	"murmur/internal/observability"

	"gorm.io/gorm"
)

// PostRepository defines the interface for published-post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	ListFeed(ctx context.Context, limit, offset int) ([]*models.Post, error)
	ListByParent(ctx context.Context, parentID uint, limit, offset int) ([]*models.Post, error)
	Delete(ctx context.Context, id uint) error
}

// postRepository implements PostRepository
type postRepository struct {
	db      *gorm.DB
	metrics *observability.DatabaseMetrics
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db, metrics: observability.NewDatabaseMetrics(db)}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	done := r.metrics.TrackQuery("insert", "posts")
	err := r.db.WithContext(ctx).Create(post).Error
	done()
	if err == nil {
		if post.ParentID == nil {
			cache.InvalidateFeed(ctx)
		} else {
			cache.InvalidatePost(ctx, *post.ParentID)
		}
	}
	return err
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := cache.Aside(ctx, cache.PostKey(id), &post, cache.PostTTL, func() error {
		defer r.metrics.TrackQuery("select", "posts")()
		return r.applyCommentCounts(r.db.WithContext(ctx)).
			First(&post, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// feedCacheSize is how many head posts the cached first page holds. The
// cache entry is always filled to this size regardless of the requesting
// limit, so concurrent readers with different limits share one entry and a
// small request can never starve a larger one.
const feedCacheSize = 100

func (r *postRepository) ListFeed(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	var posts []*models.Post

	// Only the unpaginated head of the feed is hot enough to cache.
	if offset == 0 && limit <= feedCacheSize {
		err := cache.Aside(ctx, cache.FeedFirstPageKey, &posts, cache.FeedTTL, func() error {
			defer r.metrics.TrackQuery("select", "posts")()
			return r.feedQuery(ctx).Limit(feedCacheSize).Find(&posts).Error
		})
		if err != nil {
			return nil, err
		}
		if len(posts) > limit {
			posts = posts[:limit]
		}
		return posts, nil
	}

	defer r.metrics.TrackQuery("select", "posts")()
	err := r.feedQuery(ctx).Limit(limit).Offset(offset).Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) ListByParent(ctx context.Context, parentID uint, limit, offset int) ([]*models.Post, error) {
	var posts []*models.Post
	defer r.metrics.TrackQuery("select", "posts")()
	err := r.applyCommentCounts(r.db.WithContext(ctx)).
		Where("parent_id = ?", parentID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// Delete soft-deletes a post. A second delete of the same ID reports
// ErrRecordNotFound so callers can surface it as a missing resource.
func (r *postRepository) Delete(ctx context.Context, id uint) error {
	defer r.metrics.TrackQuery("delete", "posts")()
	result := r.db.WithContext(ctx).Delete(&models.Post{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	cache.InvalidatePost(ctx, id)
	cache.InvalidateFeed(ctx)
	return nil
}

func (r *postRepository) feedQuery(ctx context.Context) *gorm.DB {
	return r.applyCommentCounts(r.db.WithContext(ctx)).
		Where("parent_id IS NULL").
		Order("created_at DESC")
}

// applyCommentCounts adds a subquery to fetch each post's live comment count
// in a single query.
func (r *postRepository) applyCommentCounts(db *gorm.DB) *gorm.DB {
	return db.Select("posts.*, " +
		"(SELECT COUNT(*) FROM posts c WHERE c.parent_id = posts.id AND c.deleted_at IS NULL) as comments_count")
}
