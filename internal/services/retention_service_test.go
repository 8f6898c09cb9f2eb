package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadwarden/roadwarden/internal/config"
	"github.com/roadwarden/roadwarden/internal/models"
)

func TestRetention_Truncate(t *testing.T) {
	db := setupTestDB(t)
	cfg := config.Config{
		RequestLogMaxAge:   24 * time.Hour,
		SessionLogMaxAge:   24 * time.Hour,
		LoginAttemptMaxAge: 24 * time.Hour,
	}
	service := NewRetentionService(db, cfg)

	now := time.Now()
	old := now.Add(-48 * time.Hour)

	stale := models.SessionLog{SessionIdentifier: "stale", LastAccessed: old}
	require.NoError(t, db.Create(&stale).Error)
	blocked := models.SessionLog{SessionIdentifier: "blocked", LastAccessed: old}
	require.NoError(t, db.Create(&blocked).Error)
	fresh := models.SessionLog{SessionIdentifier: "fresh", LastAccessed: now}
	require.NoError(t, db.Create(&fresh).Error)

	require.NoError(t, db.Create(&models.Roadblock{SessionIdentifier: "blocked", Score: 120}).Error)

	require.NoError(t, db.Create(&models.RequestLog{SessionLogID: stale.ID, CreatedAt: old}).Error)
	require.NoError(t, db.Create(&models.RequestLog{SessionLogID: fresh.ID, CreatedAt: now}).Error)

	require.NoError(t, db.Create(&models.LoginAttempt{IPAddress: "1.1.1.1", Status: models.LoginAttemptFailed, CreatedAt: old}).Error)
	require.NoError(t, db.Create(&models.LoginAttempt{IPAddress: "1.1.1.1", Status: models.LoginAttemptFailed, CreatedAt: now}).Error)

	result, err := service.Truncate()
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.RequestLogs)
	assert.EqualValues(t, 1, result.SessionLogs, "sessions with a block record survive")
	assert.EqualValues(t, 1, result.LoginAttempts)

	var sessions []models.SessionLog
	require.NoError(t, db.Find(&sessions).Error)
	identifiers := make([]string, 0, len(sessions))
	for _, s := range sessions {
		identifiers = append(identifiers, s.SessionIdentifier)
	}
	assert.ElementsMatch(t, []string{"blocked", "fresh"}, identifiers)
}

func TestRetention_StartRejectsBadSchedule(t *testing.T) {
	db := setupTestDB(t)
	service := NewRetentionService(db, config.Config{TruncateSchedule: "not a cron expression"})
	assert.Error(t, service.Start())
}

func TestRetention_StartAndStop(t *testing.T) {
	db := setupTestDB(t)
	service := NewRetentionService(db, config.Config{TruncateSchedule: "0 3 * * *"})
	require.NoError(t, service.Start())
	service.Stop()
}
