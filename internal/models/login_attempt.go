package models

import (
	"time"
)

// LoginAttemptStatus is the outcome of a recorded login attempt.
type LoginAttemptStatus string

const (
	LoginAttemptSuccess LoginAttemptStatus = "success"
	LoginAttemptFailed  LoginAttemptStatus = "failed"
)

// LoginAttempt records one authentication attempt, keyed by member when the
// identity is known and by IP otherwise. The engine reads these rows; they
// are produced by the application's auth layer (or by inspector fixtures).
type LoginAttempt struct {
	ID        uint               `json:"id" gorm:"primaryKey"`
	MemberID  *uint              `json:"member_id,omitempty" gorm:"index"`
	IPAddress string             `json:"ip_address" gorm:"index"`
	Status    LoginAttemptStatus `json:"status" gorm:"index"`
	CreatedAt time.Time          `json:"created_at" gorm:"index"`
}
