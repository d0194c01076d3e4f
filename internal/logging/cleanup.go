package logging

import (
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/models"
	"gorm.io/gorm"
)

const Retention = 30 * 24 * time.Hour

// StartCleanup runs a daily goroutine that deletes system_logs older than
// Retention.
func StartCleanup(db *gorm.DB, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deleted, err := Cleanup(db, time.Now())
				if err != nil {
					slog.Error("log cleanup failed", "error", err)
				} else if deleted > 0 {
					slog.Info("log cleanup completed", "deleted", deleted)
				}
			case <-done:
				return
			}
		}
	}()
}

func Cleanup(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Where("timestamp < ?", now.Add(-Retention)).Delete(&models.SystemLog{})
	return result.RowsAffected, result.Error
}
