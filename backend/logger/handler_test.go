package logger

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/PhilHem/gamepanel/backend/database"
	"github.com/PhilHem/gamepanel/backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return db
}

func TestDBHandler_MirrorsRecord(t *testing.T) {
	db := setupDB(t)
	var out bytes.Buffer
	log := slog.New(NewDBHandler(db, &Options{Output: &out}))

	ctx := WithRequestID(context.Background(), "req-1")
	log.ErrorContext(ctx, "2fa secret unavailable", "source", "2fa", "user_id", uint(7), "alert", true, "error", "boom")

	var entry models.LogEntry
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "2fa", entry.Source)
	assert.Equal(t, "req-1", entry.RequestID)
	assert.True(t, entry.Alert)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, uint(7), *entry.UserID)
	assert.JSONEq(t, `{"error":"boom"}`, entry.Data)

	assert.Contains(t, out.String(), `"request_id":"req-1"`)
}

func TestDBHandler_MinLevel(t *testing.T) {
	db := setupDB(t)
	log := slog.New(NewDBHandler(db, &Options{Level: slog.LevelWarn, Output: &bytes.Buffer{}}))

	log.Info("ignored", "source", "auth")
	log.Warn("kept", "source", "auth")

	var count int64
	db.Model(&models.LogEntry{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestDBHandler_WithAttrs(t *testing.T) {
	db := setupDB(t)
	log := slog.New(NewDBHandler(db, &Options{Output: &bytes.Buffer{}})).With("source", "ratelimit")

	log.Warn("too many attempts", "key", "abc")

	var entry models.LogEntry
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, "ratelimit", entry.Source)
	assert.False(t, entry.Alert)
	assert.Nil(t, entry.UserID)
}

func TestPurgeBefore(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Create(&models.LogEntry{CreatedAt: time.Now().Add(-48 * time.Hour), Message: "old"}).Error)
	require.NoError(t, db.Create(&models.LogEntry{CreatedAt: time.Now(), Message: "new"}).Error)

	n, err := PurgeBefore(context.Background(), db, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
