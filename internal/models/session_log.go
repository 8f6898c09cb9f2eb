package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionLog identifies a browser or API session. One row exists per
// SessionIdentifier (cookie value); the SessionAlias is the public handle
// surfaced in admin views so the raw identifier never leaves the backend.
type SessionLog struct {
	ID                uint         `json:"id" gorm:"primaryKey"`
	SessionIdentifier string       `json:"-" gorm:"uniqueIndex"`
	SessionAlias      string       `json:"session_alias" gorm:"uniqueIndex"`
	IPAddress         string       `json:"ip_address" gorm:"index"`
	UserAgent         string       `json:"user_agent"`
	LastAccessed      time.Time    `json:"last_accessed"`
	MemberID          *uint        `json:"member_id,omitempty" gorm:"index"`
	Member            *Member      `json:"member,omitempty"`
	RequestLogs       []RequestLog `json:"request_logs,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (s *SessionLog) BeforeCreate(tx *gorm.DB) (err error) {
	if s.SessionAlias == "" {
		s.SessionAlias = uuid.New().String()
	}
	return
}

// RequestLog is an immutable snapshot of one inbound request. The only
// mutation permitted after creation is the StatusCode patch applied once the
// response has been served.
type RequestLog struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	IPAddress    string    `json:"ip_address" gorm:"index"`
	URL          string    `json:"url"`
	Verb         string    `json:"verb"`
	UserAgent    string    `json:"user_agent"`
	Types        string    `json:"types"` // comma-joined request type titles from the classifier
	StatusCode   *int      `json:"status_code,omitempty"`
	SessionLogID uint      `json:"session_log_id" gorm:"index"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}
