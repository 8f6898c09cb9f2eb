package models

import (
	"time"
)

// IPPermission is the polarity of an IP rule.
type IPPermission string

const (
	IPPermissionAllowed IPPermission = "allowed"
	IPPermissionDenied  IPPermission = "denied"
)

// IPRule is an allow/deny entry attached to request types. IPAddress accepts
// a single address ("1.2.3.4"), a CIDR ("1.2.3.0/24") or an explicit range
// ("1.2.3.4-1.2.3.10"); membership is resolved by a single shared range
// algorithm regardless of notation.
type IPRule struct {
	ID           uint          `json:"id" gorm:"primaryKey"`
	Permission   IPPermission  `json:"permission" gorm:"uniqueIndex:idx_ip_rules_perm_addr"`
	IPAddress    string        `json:"ip_address" gorm:"uniqueIndex:idx_ip_rules_perm_addr"`
	Description  string        `json:"description"`
	Enabled      bool          `json:"enabled" gorm:"default:true"`
	RequestTypes []RequestType `json:"request_types,omitempty" gorm:"many2many:request_type_ip_rules;"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
