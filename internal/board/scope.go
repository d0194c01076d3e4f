package board

import "gorm.io/gorm"

// ForBoard returns a GORM scope that filters by board_id.
func ForBoard(boardID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("board_id = ?", boardID)
	}
}
