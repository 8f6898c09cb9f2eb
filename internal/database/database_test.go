package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadwarden/roadwarden/internal/models"
)

func TestOpenAndMigrate(t *testing.T) {
	// Memory DB
	db, err := Open("file::memory:?cache=shared")
	require.NoError(t, err)
	require.NotNil(t, db)
	require.NoError(t, Migrate(db))

	// Migrated tables are usable
	assert.NoError(t, db.Create(&models.RequestType{Title: "content"}).Error)

	// File DB
	tempDir := t.TempDir()
	db, err = Open(filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)
	assert.NoError(t, Migrate(db))
}
