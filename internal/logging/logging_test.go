package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "logs.sqlite")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SystemLog{}))
	return db
}

func TestPGHandlerStoresErrors(t *testing.T) {
	db := testDB(t)
	h := NewPGHandler(db)
	log := slog.New(h).With("board_id", "general")

	log.Info("ignored")
	log.Error("scan failed", "post_id", "p-1", "fingerprint", "fp", "error", "boom", "attempt", 2)
	h.Stop()

	var rows []models.SystemLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "ERROR", row.Level)
	assert.Equal(t, "scan failed", row.Message)
	assert.Equal(t, "general", row.BoardID)
	assert.Equal(t, "p-1", row.PostID)
	assert.Equal(t, "boom", row.Error)
	require.NotNil(t, row.Fingerprint)
	assert.Equal(t, "fp", *row.Fingerprint)

	var extra map[string]interface{}
	require.NoError(t, json.Unmarshal(row.Extra, &extra))
	assert.EqualValues(t, 2, extra["attempt"])
}

func TestMultiHandlerFansOut(t *testing.T) {
	var info, debug bytes.Buffer
	m := NewMultiHandler(
		slog.NewJSONHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	log := slog.New(m).With("board_id", "b")

	assert.True(t, m.Enabled(context.Background(), slog.LevelDebug))
	log.Debug("low")
	log.Info("high")

	assert.NotContains(t, info.String(), "low")
	assert.Contains(t, info.String(), "high")
	assert.Contains(t, debug.String(), "low")
	assert.Contains(t, debug.String(), `"board_id":"b"`)
}

func TestCleanup(t *testing.T) {
	db := testDB(t)
	now := time.Now().UTC()
	require.NoError(t, db.Create(&[]models.SystemLog{
		{Timestamp: now.Add(-31 * 24 * time.Hour), Level: "ERROR", Message: "old"},
		{Timestamp: now.Add(-time.Hour), Level: "ERROR", Message: "new"},
	}).Error)

	deleted, err := Cleanup(db, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var left []models.SystemLog
	require.NoError(t, db.Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].Message)
}
