package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ModerationCategory is a named group of terms and patterns that contributes
// Weight to a post's score when any of them match.
type ModerationCategory struct {
	ID        uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string              `gorm:"size:50;not null;uniqueIndex" json:"name"`
	Weight    float64             `gorm:"not null" json:"weight"`
	IsActive  bool                `gorm:"not null;default:true" json:"is_active"`
	Terms     []ModerationTerm    `gorm:"foreignKey:CategoryID" json:"terms"`
	Patterns  []ModerationPattern `gorm:"foreignKey:CategoryID" json:"patterns"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type ModerationTerm struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	CategoryID uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	Term       string    `gorm:"size:200;not null" json:"term"`
}

type ModerationPattern struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	CategoryID uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	Pattern    string    `gorm:"size:500;not null" json:"pattern"`
}

// Homophone maps one evasion variant to its canonical token.
type Homophone struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	Canonical string `gorm:"size:100;not null;index" json:"canonical"`
	Variant   string `gorm:"size:100;not null;uniqueIndex" json:"variant"`
}

// BoardRelaxation exempts a board from one category (e.g. nsfw on an adult board).
type BoardRelaxation struct {
	ID           uint   `gorm:"primaryKey" json:"-"`
	BoardID      string `gorm:"size:50;not null;uniqueIndex:idx_board_relaxation,priority:1" json:"board_id"`
	CategoryName string `gorm:"size:50;not null;uniqueIndex:idx_board_relaxation,priority:2" json:"category_name"`
}

func (c *ModerationCategory) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (ModerationCategory) TableName() string {
	return "moderation_categories"
}

// PipelineModels returns every model the moderation pipeline persists.
func PipelineModels() []interface{} {
	return []interface{}{
		&Post{},
		&Report{},
		&ModerationLog{},
		&ModerationCategory{},
		&ModerationTerm{},
		&ModerationPattern{},
		&Homophone{},
		&BoardRelaxation{},
	}
}
