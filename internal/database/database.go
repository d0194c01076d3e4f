package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/config"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

const connectAttempts = 5

// Connect opens the Postgres pool, retrying while the server comes up.
func Connect(cfg *config.Config) error {
	db, err := Open(postgres.Open(cfg.DSN()), logger.Warn)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	backoff := time.Second
	for attempt := 1; ; attempt++ {
		err = sqlDB.Ping()
		if err == nil {
			break
		}
		if attempt == connectAttempts {
			return fmt.Errorf("failed to reach database after %d attempts: %w", attempt, err)
		}
		slog.Warn("database not ready, retrying", "attempt", attempt, "error", err)
		time.Sleep(backoff)
		backoff *= 2
	}

	DB = db
	slog.Info("database connected", "host", cfg.DBHost, "name", cfg.DBName)
	return nil
}

// Open opens a GORM handle with the settings every caller relies on: unique
// violations surface as gorm.ErrDuplicatedKey and timestamps are UTC.
func Open(dialector gorm.Dialector, level logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate runs AutoMigrate for the board and moderation models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.PipelineModels()...); err != nil {
		return err
	}
	return db.AutoMigrate(&models.SystemLog{})
}

func Ping(ctx context.Context) error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
