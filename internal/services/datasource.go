package services

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/models"
)

// RequestFilter narrows the request history a rule counts against. Zero
// values mean "no constraint" for that dimension.
type RequestFilter struct {
	SessionLogID uint     // scope to one session
	IPAddress    string   // scope to one requesting IP across sessions
	TypeTitles   []string // partial match against RequestLog.Types
	Verb         string   // exact verb match, empty = any
	StatusCodes  []int    // response status filter for post-response rules
	Since        time.Time
	IncludeIPs   *IPSet // only count requests from these addresses
	ExcludeIPs   *IPSet // never count requests from these addresses
}

// LoginFilter narrows the login-attempt history a rule counts against.
type LoginFilter struct {
	MemberID  uint
	IPAddress string
	Status    models.LoginAttemptStatus // empty = any status
	Since     time.Time
}

// DataSource is the history capability the evaluator reads from. The live
// implementation queries the database; the inspector harness substitutes a
// fixture implementation so rules can be dry-run against synthetic traffic.
type DataSource interface {
	CountRequests(f RequestFilter) (int64, error)
	CountLoginAttempts(f LoginFilter) (int64, error)
	SessionsForMember(memberID uint) ([]models.SessionLog, error)
}

// matchRequest applies the non-indexable parts of a RequestFilter (type
// partial match, IP set membership) shared by both implementations.
func matchRequest(log models.RequestLog, f RequestFilter) bool {
	if len(f.TypeTitles) > 0 {
		matched := false
		for _, title := range f.TypeTitles {
			if title != "" && strings.Contains(log.Types, title) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.IncludeIPs != nil && !f.IncludeIPs.Contains(log.IPAddress) {
		return false
	}
	if f.ExcludeIPs != nil && f.ExcludeIPs.Contains(log.IPAddress) {
		return false
	}
	return true
}

// liveDataSource reads history from the database.
type liveDataSource struct {
	db *gorm.DB
}

// NewLiveDataSource returns the production DataSource backed by the given DB.
func NewLiveDataSource(db *gorm.DB) DataSource {
	return &liveDataSource{db: db}
}

func (s *liveDataSource) CountRequests(f RequestFilter) (int64, error) {
	q := s.db.Model(&models.RequestLog{})
	if f.SessionLogID != 0 {
		q = q.Where("session_log_id = ?", f.SessionLogID)
	}
	if f.IPAddress != "" {
		q = q.Where("ip_address = ?", f.IPAddress)
	}
	if f.Verb != "" {
		q = q.Where("verb = ?", f.Verb)
	}
	if len(f.StatusCodes) > 0 {
		q = q.Where("status_code IN ?", f.StatusCodes)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}

	// Type partial matching and IP range membership cannot be expressed as
	// indexed predicates, so fetch the narrowed rows and filter in memory.
	var logs []models.RequestLog
	if err := q.Find(&logs).Error; err != nil {
		return 0, err
	}
	var count int64
	for _, log := range logs {
		if matchRequest(log, f) {
			count++
		}
	}
	return count, nil
}

func (s *liveDataSource) CountLoginAttempts(f LoginFilter) (int64, error) {
	q := s.db.Model(&models.LoginAttempt{})
	if f.MemberID != 0 {
		q = q.Where("member_id = ?", f.MemberID)
	} else if f.IPAddress != "" {
		q = q.Where("ip_address = ?", f.IPAddress)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *liveDataSource) SessionsForMember(memberID uint) ([]models.SessionLog, error) {
	var sessions []models.SessionLog
	if err := s.db.Where("member_id = ?", memberID).Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// FixtureDataSource serves synthetic history for inspector runs.
type FixtureDataSource struct {
	Requests []models.RequestLog
	Logins   []models.LoginAttempt
	Sessions []models.SessionLog
}

func (s *FixtureDataSource) CountRequests(f RequestFilter) (int64, error) {
	var count int64
	for _, log := range s.Requests {
		if f.SessionLogID != 0 && log.SessionLogID != f.SessionLogID {
			continue
		}
		if f.IPAddress != "" && log.IPAddress != f.IPAddress {
			continue
		}
		if f.Verb != "" && log.Verb != f.Verb {
			continue
		}
		if len(f.StatusCodes) > 0 {
			if log.StatusCode == nil {
				continue
			}
			found := false
			for _, code := range f.StatusCodes {
				if *log.StatusCode == code {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if !f.Since.IsZero() && log.CreatedAt.Before(f.Since) {
			continue
		}
		if matchRequest(log, f) {
			count++
		}
	}
	return count, nil
}

func (s *FixtureDataSource) CountLoginAttempts(f LoginFilter) (int64, error) {
	var count int64
	for _, attempt := range s.Logins {
		if f.MemberID != 0 {
			if attempt.MemberID == nil || *attempt.MemberID != f.MemberID {
				continue
			}
		} else if f.IPAddress != "" && attempt.IPAddress != f.IPAddress {
			continue
		}
		if f.Status != "" && attempt.Status != f.Status {
			continue
		}
		if !f.Since.IsZero() && attempt.CreatedAt.Before(f.Since) {
			continue
		}
		count++
	}
	return count, nil
}

func (s *FixtureDataSource) SessionsForMember(memberID uint) ([]models.SessionLog, error) {
	var sessions []models.SessionLog
	for _, sess := range s.Sessions {
		if sess.MemberID != nil && *sess.MemberID == memberID {
			sessions = append(sessions, sess)
		}
	}
	return sessions, nil
}
