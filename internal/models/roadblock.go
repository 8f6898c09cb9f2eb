package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BlockStatus classifies the outcome of an evaluation pass, worst case
// among the rules that triggered for the request.
type BlockStatus string

const (
	BlockStatusNone    BlockStatus = "none"
	BlockStatusInfo    BlockStatus = "info"    // negative score, informational only
	BlockStatusPartial BlockStatus = "partial" // score raised but still under threshold
	BlockStatusLatest  BlockStatus = "latest"  // re-trigger against an already blocked record
	BlockStatusFull    BlockStatus = "full"    // score crossed the threshold this evaluation
	BlockStatusSingle  BlockStatus = "single"  // zero-score rule: block this request only
)

var blockSeverity = map[BlockStatus]int{
	BlockStatusNone:    0,
	BlockStatusInfo:    1,
	BlockStatusPartial: 2,
	BlockStatusLatest:  3,
	BlockStatusFull:    4,
	BlockStatusSingle:  5,
}

// Worse returns the more severe of the two statuses.
func (s BlockStatus) Worse(other BlockStatus) BlockStatus {
	if blockSeverity[other] > blockSeverity[s] {
		return other
	}
	return s
}

// Blocking reports whether the status terminates the request.
func (s BlockStatus) Blocking() bool {
	return s == BlockStatusFull || s == BlockStatusSingle
}

// Roadblock is the per-session block record: the cumulative risk score, the
// current block window and the rules contributing to it. At most one row
// exists per SessionIdentifier.
type Roadblock struct {
	ID                 uint           `json:"id" gorm:"primaryKey"`
	UUID               string         `json:"uuid" gorm:"uniqueIndex"`
	SessionIdentifier  string         `json:"-" gorm:"index"`
	SessionAlias       string         `json:"session_alias"`
	IPAddress          string         `json:"ip_address" gorm:"index"`
	MemberID           *uint          `json:"member_id,omitempty" gorm:"index"`
	Score              float64        `json:"score"`
	Expiry             *time.Time     `json:"expiry,omitempty"`
	CycleCount         int            `json:"cycle_count"`
	AdminOverride      bool           `json:"admin_override"` // overridden records never auto-block
	LastNotified       *time.Time     `json:"last_notified,omitempty"`
	LastNotifiedMember *time.Time     `json:"last_notified_member,omitempty"`
	Rules              []Rule         `json:"rules,omitempty" gorm:"many2many:roadblock_rules;"`
	Infringements      []Infringement `json:"infringements,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (r *Roadblock) BeforeCreate(tx *gorm.DB) (err error) {
	if r.UUID == "" {
		r.UUID = uuid.New().String()
	}
	return
}

// HasRule reports whether the rule is already attached to this record.
func (r *Roadblock) HasRule(ruleID uint) bool {
	for _, attached := range r.Rules {
		if attached.ID == ruleID {
			return true
		}
	}
	return false
}

// Infringement is the immutable audit row written each time a rule's
// conditions are met by current traffic. Description carries the evaluation
// trace, which is admin-only detail.
type Infringement struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UUID        string    `json:"uuid" gorm:"uniqueIndex"`
	RoadblockID uint      `json:"roadblock_id" gorm:"index"`
	RuleID      *uint     `json:"rule_id,omitempty" gorm:"index"`
	RuleTitle   string    `json:"rule_title"`
	URL         string    `json:"url"`
	Verb        string    `json:"verb"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

func (i *Infringement) BeforeCreate(tx *gorm.DB) (err error) {
	if i.UUID == "" {
		i.UUID = uuid.New().String()
	}
	return
}
