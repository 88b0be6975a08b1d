// Package models contains data structures for the application's domain models.
package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Post is a published submission on the public feed. A post with a non-nil
// ParentID is a comment on the referenced top-level post. Posts are
// append/delete-only: nothing ever updates one in place.
type Post struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Content       string         `gorm:"type:text;not null" json:"content"`
	AttachmentURI string         `gorm:"type:text" json:"attachment_uri,omitempty"`
	AuthorID      string         `gorm:"not null;index" json:"author_id"`
	AuthorLabel   string         `gorm:"not null" json:"author_label"`
	ParentID      *uint          `gorm:"index" json:"parent_id,omitempty"`
	// CommentsCount is not persisted; computed at query time
	CommentsCount int            `gorm:"->" json:"comments_count"`
	CreatedAt     time.Time      `json:"-"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// MarshalJSON serializes CreatedAt as an RFC3339 UTC string so every consumer
// sees one canonical timestamp shape regardless of the store's native type.
func (p Post) MarshalJSON() ([]byte, error) {
	type alias Post
	return json.Marshal(struct {
		alias
		CreatedAt string `json:"created_at"`
	}{
		alias:     alias(p),
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// UnmarshalJSON restores CreatedAt from the canonical string form. Posts
// round-trip through the cache as JSON, so decoding must not drop the
// timestamp the struct tag hides from plain encoding.
func (p *Post) UnmarshalJSON(data []byte) error {
	type alias Post
	aux := struct {
		*alias
		CreatedAt string `json:"created_at"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.CreatedAt != "" {
		ts, err := time.Parse(time.RFC3339Nano, aux.CreatedAt)
		if err != nil {
			return err
		}
		p.CreatedAt = ts
	}
	return nil
}
