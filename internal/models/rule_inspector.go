package models

import (
	"time"
)

// RuleInspector is a synthetic regression fixture for one rule: a dry-run
// session with request and login-attempt tuples, plus the trace the
// evaluation is expected to produce. Running the inspector replays the
// fixtures through the evaluator and diffs the trace against ExpectedResult.
//
// Fixture cells use pipe-delimited tuples, one per line:
//
//	RequestFixtures: TimeOffset|URL|Verb|IPAddress|UserAgent
//	LoginFixtures:   TimeOffset|Status|IPAddress
//
// TimeOffset is seconds before the simulated evaluation time.
type RuleInspector struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	RuleID          uint       `json:"rule_id" gorm:"index"`
	Title           string     `json:"title"`
	IPAddress       string     `json:"ip_address"` // the simulated caller IP
	UserAgent       string     `json:"user_agent"`
	MemberID        *uint      `json:"member_id,omitempty"` // simulate an authenticated member
	RequestFixtures string     `json:"request_fixtures" gorm:"type:text"`
	LoginFixtures   string     `json:"login_fixtures" gorm:"type:text"`
	ExpectedResult  string     `json:"expected_result" gorm:"type:text"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	Result          string     `json:"result"` // "pass", "fail" or empty when never run
	LastTrace       string     `json:"last_trace" gorm:"type:text"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
