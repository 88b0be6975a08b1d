package models

import (
	"encoding/json"
	"time"
)

// QuarantinedItem holds a submission the classifier judged violating. It is
// the alternative terminal state to a Post: exactly one of the two is created
// per submission. Quarantined content is never surfaced to any feed; it is
// retained for manual review.
type QuarantinedItem struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	AttachmentURI string    `gorm:"type:text" json:"attachment_uri,omitempty"`
	AuthorID      string    `gorm:"not null;index" json:"author_id"`
	AuthorLabel   string    `gorm:"not null" json:"author_label"`
	Reason        string    `gorm:"type:text" json:"reason"`
	FlaggedAt     time.Time `gorm:"autoCreateTime" json:"-"`
}

// MarshalJSON serializes FlaggedAt as an RFC3339 UTC string.
func (q QuarantinedItem) MarshalJSON() ([]byte, error) {
	type alias QuarantinedItem
	return json.Marshal(struct {
		alias
		FlaggedAt string `json:"flagged_at"`
	}{
		alias:     alias(q),
		FlaggedAt: q.FlaggedAt.UTC().Format(time.RFC3339Nano),
	})
}
