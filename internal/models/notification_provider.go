package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationProvider is an external delivery target (shoutrrr URL) for
// block and advisory notifications.
type NotificationProvider struct {
	ID      string `gorm:"primaryKey" json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"` // discord, slack, gotify, telegram, smtp, generic
	URL     string `json:"url"`  // the shoutrrr URL
	Enabled bool   `json:"enabled"`

	// Notification preferences.
	NotifyBlocks   bool `json:"notify_blocks" gorm:"default:true"`   // full/single verdicts
	NotifyAdvisory bool `json:"notify_advisory" gorm:"default:true"` // info/partial/latest verdicts

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (n *NotificationProvider) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if strings.TrimSpace(n.Type) == "" {
		n.Type = "generic"
	}
	return
}
