package models

import (
	"time"
)

// RequestType is a classification bucket for inbound URLs. Rules and IP
// lists are scoped to one or more request types.
type RequestType struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Title       string    `json:"title" gorm:"uniqueIndex"`
	Description string    `json:"description"`
	URLRules    []URLRule `json:"url_rules,omitempty"`
	IPRules     []IPRule  `json:"ip_rules,omitempty" gorm:"many2many:request_type_ip_rules;"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// URLRule maps a URL pattern to a request type. Rules are evaluated in
// ascending Order; the classifier collects every match.
type URLRule struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	Title         string    `json:"title" gorm:"uniqueIndex"`
	Pattern       string    `json:"pattern"` // regular expression tested against the request URL
	Order         int       `json:"order" gorm:"column:sort_order;index"`
	Enabled       bool      `json:"enabled" gorm:"default:true"`
	RequestTypeID uint      `json:"request_type_id" gorm:"index"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
