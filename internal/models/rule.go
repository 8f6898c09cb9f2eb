package models

import (
	"strconv"
	"strings"
	"time"
)

// RuleLevel is the scope a rule evaluates against.
type RuleLevel string

const (
	// RuleLevelGlobal evaluates against the requesting IP across all sessions
	// sharing that IP.
	RuleLevelGlobal RuleLevel = "global"
	// RuleLevelMember requires an authenticated member and fans out over all
	// of that member's sessions.
	RuleLevelMember RuleLevel = "member"
	// RuleLevelSession evaluates the current session only.
	RuleLevelSession RuleLevel = "session"
)

// IPMode selects which IP list (if any) participates in rule evaluation.
type IPMode string

const (
	IPModeAny               IPMode = "any"
	IPModeAllowed           IPMode = "allowed"
	IPModeAllowedGroup      IPMode = "allowed_for_group"
	IPModeAllowedPermission IPMode = "allowed_for_permission"
	IPModeDenied            IPMode = "denied"
)

// Rule is a configured condition set. When a rule's conditions are met by
// recent traffic an infringement is recorded and the rule's Score
// contributes to the session's block record.
type Rule struct {
	ID    uint      `json:"id" gorm:"primaryKey"`
	Title string    `json:"title" gorm:"uniqueIndex"`
	Level RuleLevel `json:"level" gorm:"default:session"`

	// Request filters.
	Verb        string `json:"verb" gorm:"default:any"` // HTTP verb, or "any"
	Count       int    `json:"count"`                   // request count threshold within the window
	StartOffset int    `json:"start_offset"`            // window length in seconds, back from last access
	StatusCodes string `json:"status_codes"`            // comma-separated; non-empty marks a post-response rule

	// IP filters.
	IPMode IPMode `json:"ip_mode" gorm:"column:ip_mode;default:any"`

	// Login attempt filters.
	LoginAttemptsNumber      int                `json:"login_attempts_number"`
	LoginAttemptsStatus      LoginAttemptStatus `json:"login_attempts_status"` // empty = any status
	LoginAttemptsStartOffset int                `json:"login_attempts_start_offset"`

	// Group/permission exclusions.
	GroupCode              string `json:"group_code"`
	PermissionCode         string `json:"permission_code"`
	ExcludeGroup           bool   `json:"exclude_group"`
	ExcludeUnauthenticated bool   `json:"exclude_unauthenticated"`
	ExcludePermission      bool   `json:"exclude_permission"`

	// Scoring.
	Score      float64 `json:"score"`      // sign-significant: 0 = single-request block, <0 = informational
	Cumulative bool    `json:"cumulative"` // re-apply the score on every re-trigger

	// Notification flags.
	NotifyAdmin  bool `json:"notify_admin" gorm:"default:true"`
	NotifyMember bool `json:"notify_member"`

	Enabled      bool            `json:"enabled" gorm:"default:true"`
	RequestTypes []RequestType   `json:"request_types,omitempty" gorm:"many2many:rule_request_types;"`
	Inspectors   []RuleInspector `json:"inspectors,omitempty" gorm:"foreignKey:RuleID"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// StatusCodeList parses the StatusCodes field into integers, ignoring
// malformed entries.
func (r *Rule) StatusCodeList() []int {
	if strings.TrimSpace(r.StatusCodes) == "" {
		return nil
	}
	var codes []int
	for _, part := range strings.Split(r.StatusCodes, ",") {
		code, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		codes = append(codes, code)
	}
	return codes
}

// PostResponse reports whether the rule only applies once the response
// status is known.
func (r *Rule) PostResponse() bool {
	return len(r.StatusCodeList()) > 0
}

// VerbAny reports whether the rule matches any HTTP verb.
func (r *Rule) VerbAny() bool {
	v := strings.TrimSpace(strings.ToLower(r.Verb))
	return v == "" || v == "any"
}
