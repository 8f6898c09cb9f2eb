package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Member is an authenticated identity. Group membership drives the rule
// exclusion checks; permission codes are carried on groups.
type Member struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	UUID         string     `json:"uuid" gorm:"uniqueIndex"`
	Email        string     `json:"email" gorm:"uniqueIndex"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"` // never serialize the hash
	Enabled      bool       `json:"enabled" gorm:"default:true"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	Groups       []Group    `json:"groups,omitempty" gorm:"many2many:member_groups;"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (m *Member) BeforeCreate(tx *gorm.DB) (err error) {
	if m.UUID == "" {
		m.UUID = uuid.New().String()
	}
	return nil
}

// SetPassword hashes and sets the member's password.
func (m *Member) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	m.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares the provided password with the stored hash.
func (m *Member) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password))
	return err == nil
}

// Group is a named member group carrying a comma-separated list of
// permission codes.
type Group struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Code        string    `json:"code" gorm:"uniqueIndex"`
	Title       string    `json:"title"`
	Permissions string    `json:"permissions"` // comma-separated permission codes
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasPermission reports whether the group carries the given permission code.
func (g *Group) HasPermission(code string) bool {
	for _, p := range strings.Split(g.Permissions, ",") {
		if strings.EqualFold(strings.TrimSpace(p), code) {
			return true
		}
	}
	return false
}
