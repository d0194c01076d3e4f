package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReportCategories lists the reasons a reader may give when reporting a post.
var ReportCategories = []string{
	"spam", "harassment", "illegal", "nsfw", "misinformation", "other",
}

// Report is a reader's complaint about a post. One per reporter per post;
// never updated after creation.
type Report struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PostID              uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reports_post_reporter,priority:1" json:"post_id"`
	ReporterFingerprint string    `gorm:"size:64;not null;uniqueIndex:idx_reports_post_reporter,priority:2" json:"-"`
	Category            string    `gorm:"size:30;not null" json:"category"`
	Text                string    `gorm:"size:500" json:"text,omitempty"`
	CreatedAt           time.Time `gorm:"index" json:"created_at"`
}

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (Report) TableName() string {
	return "reports"
}
