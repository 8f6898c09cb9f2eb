package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadwarden/roadwarden/internal/config"
	"github.com/roadwarden/roadwarden/internal/models"
)

func TestNotify_InternalLifecycle(t *testing.T) {
	db := setupTestDB(t)
	service := NewNotifyService(db, config.Config{NotifyInterval: time.Minute})

	first, err := service.Create(models.NotificationTypeWarning, "Blocked", "Session x blocked")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	_, err = service.Create(models.NotificationTypeInfo, "Advisory", "Session y advisory")
	require.NoError(t, err)

	all, err := service.List(false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, service.MarkAsRead(first.ID))
	unread, err := service.List(true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "Advisory", unread[0].Title)

	require.NoError(t, service.MarkAllAsRead())
	unread, err = service.List(true)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestNotify_ShouldNotifyThrottles(t *testing.T) {
	service := NewNotifyService(nil, config.Config{NotifyInterval: 5 * time.Minute})
	now := time.Now()

	assert.True(t, service.shouldNotify(nil, now), "never notified sends immediately")

	recent := now.Add(-time.Minute)
	assert.False(t, service.shouldNotify(&recent, now))

	stale := now.Add(-10 * time.Minute)
	assert.True(t, service.shouldNotify(&stale, now))
}

func TestNotify_NormalizeURL(t *testing.T) {
	assert.Equal(t, "discord://token-abc_123@42",
		normalizeURL("discord", "https://discord.com/api/webhooks/42/token-abc_123"))
	assert.Equal(t, "gotify://host/token",
		normalizeURL("gotify", "gotify://host/token"))
	assert.Equal(t, "https://discord.com/not-a-webhook",
		normalizeURL("discord", "https://discord.com/not-a-webhook"))
}

func TestNotify_ProviderCRUD(t *testing.T) {
	db := setupTestDB(t)
	service := NewNotifyService(db, config.Config{})

	provider := &models.NotificationProvider{
		Name:         "ops chat",
		URL:          "generic://example.invalid/hook",
		NotifyBlocks: true,
		Enabled:      true,
	}
	require.NoError(t, service.CreateProvider(provider))
	assert.NotEmpty(t, provider.ID)
	assert.Equal(t, "generic", provider.Type)

	providers, err := service.ListProviders()
	require.NoError(t, err)
	require.Len(t, providers, 1)

	provider.NotifyAdvisory = true
	require.NoError(t, service.UpdateProvider(provider))

	require.NoError(t, service.DeleteProvider(provider.ID))
	providers, err = service.ListProviders()
	require.NoError(t, err)
	assert.Empty(t, providers)
}

func TestNotify_DispatchThrottlesPerRecord(t *testing.T) {
	db := setupTestDB(t)
	service := NewNotifyService(db, config.Config{NotifyInterval: 5 * time.Minute})

	session := &models.SessionLog{SessionIdentifier: "sess-n", IPAddress: "9.9.9.9", LastAccessed: time.Now()}
	require.NoError(t, db.Create(session).Error)
	record := &models.Roadblock{SessionIdentifier: "sess-n", SessionAlias: session.SessionAlias, Score: 100}
	require.NoError(t, db.Create(record).Error)
	request := &models.RequestLog{SessionLogID: session.ID, URL: "/admin", Verb: "GET", CreatedAt: time.Now()}

	service.Dispatch(models.BlockStatusFull, nil, session, record, request, false)

	var saved models.Roadblock
	require.NoError(t, db.First(&saved, record.ID).Error)
	require.NotNil(t, saved.LastNotified)

	var count int64
	db.Model(&models.Notification{}).Count(&count)
	assert.EqualValues(t, 1, count)

	// A re-trigger inside the interval stays quiet.
	service.Dispatch(models.BlockStatusLatest, nil, session, record, request, false)
	db.Model(&models.Notification{}).Count(&count)
	assert.EqualValues(t, 1, count)
}
