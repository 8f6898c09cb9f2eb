package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/models"
)

// Open bootstraps a SQLite database using the provided filesystem path.
func Open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	return db, nil
}

// Migrate runs automatic migrations for every model the engine persists.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.RequestType{},
		&models.URLRule{},
		&models.IPRule{},
		&models.SessionLog{},
		&models.RequestLog{},
		&models.LoginAttempt{},
		&models.Member{},
		&models.Group{},
		&models.Rule{},
		&models.Roadblock{},
		&models.Infringement{},
		&models.RuleInspector{},
		&models.Notification{},
		&models.NotificationProvider{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
