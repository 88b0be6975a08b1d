package models

import (
	"encoding/json"
	"time"
)

// Report statuses.
const (
	ReportStatusOpen      = "open"
	ReportStatusResolved  = "resolved"
	ReportStatusDismissed = "dismissed"
)

// Report is a user-filed complaint about a published post, kept for manual
// review alongside the quarantine queue.
type Report struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PostID     uint      `gorm:"not null;index" json:"post_id"`
	ReporterID string    `gorm:"not null;index" json:"reporter_id"`
	Reason     string    `gorm:"not null" json:"reason"`
	Details    string    `gorm:"type:text" json:"details"`
	Status     string    `gorm:"not null;default:open" json:"status"`
	CreatedAt  time.Time `json:"-"`
}

// MarshalJSON serializes CreatedAt as an RFC3339 UTC string.
func (r Report) MarshalJSON() ([]byte, error) {
	type alias Report
	return json.Marshal(struct {
		alias
		CreatedAt string `json:"created_at"`
	}{
		alias:     alias(r),
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}
