package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	LogActionApprove          = "approve"
	LogActionReject           = "reject"
	LogActionClassifierUpdate = "classifier_update"
)

var ErrLogImmutable = errors.New("moderation log entries are append-only")

// ModerationLog is an audit record of an administrative action.
type ModerationLog struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Action           string    `gorm:"size:30;not null;index" json:"action"`
	TargetType       string    `gorm:"size:30;not null" json:"target_type"`
	TargetID         string    `gorm:"size:100;not null;index" json:"target_id"`
	AdminFingerprint string    `gorm:"size:64;not null" json:"admin_fingerprint"`
	Reason           string    `gorm:"size:200" json:"reason,omitempty"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
}

func (l *ModerationLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (l *ModerationLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrLogImmutable
}

func (l *ModerationLog) BeforeDelete(tx *gorm.DB) error {
	return ErrLogImmutable
}

func (ModerationLog) TableName() string {
	return "moderation_logs"
}
