package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Visibility values for Post.Status.
const (
	PostVisible     = 0
	PostSoftDeleted = 2
)

// Moderation states a post moves through.
const (
	ModerationUnscanned     = "unscanned"
	ModerationClean         = "clean"
	ModerationPendingReview = "pending_review"
	ModerationApproved      = "approved"
	ModerationRejected      = "rejected"
)

// Flag sources recorded in Post.FlaggedBy.
const (
	FlaggedBySystemScan = "system_scan"
	FlaggedByUserReport = "user_report"
)

// Post is a single anonymous submission. A thread opener has Floor 1 and
// ThreadID equal to its own ID.
type Post struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BoardID     string    `gorm:"size:50;not null;index" json:"board_id"`
	ThreadID    uuid.UUID `gorm:"type:uuid;not null;index" json:"thread_id"`
	Floor       int       `gorm:"not null" json:"floor"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	Fingerprint string    `gorm:"size:64;not null;index" json:"-"`
	Status      int       `gorm:"not null;default:0;index" json:"status"`

	ModerationStatus  string                      `gorm:"size:20;not null;default:'unscanned';index" json:"moderation_status"`
	ModerationScore   *float64                    `json:"moderation_score,omitempty"`
	FlaggedCategories datatypes.JSONSlice[string] `gorm:"type:text" json:"flagged_categories,omitempty"`
	FlaggedBy         *string                     `gorm:"size:20" json:"flagged_by,omitempty"`
	FlaggedAt         *time.Time                  `json:"flagged_at,omitempty"`
	FlagRevision      int                         `gorm:"not null;default:0" json:"-"`

	LinkPreview LinkPreview `gorm:"embedded;embeddedPrefix:preview_" json:"link_preview"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LinkPreview is the bounded metadata extracted for a post's first link.
// An empty URL means the post has no preview.
type LinkPreview struct {
	URL         string `gorm:"size:2048" json:"url,omitempty"`
	Title       string `gorm:"size:200" json:"title,omitempty"`
	Description string `gorm:"size:500" json:"description,omitempty"`
	Image       string `gorm:"size:2048" json:"image,omitempty"`
	SiteName    string `gorm:"size:100" json:"site_name,omitempty"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.ThreadID == uuid.Nil {
		p.ThreadID = p.ID
	}
	if p.ModerationStatus == "" {
		p.ModerationStatus = ModerationUnscanned
	}
	return nil
}

func (Post) TableName() string {
	return "posts"
}
