package services

import (
	"errors"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/logger"
	"github.com/roadwarden/roadwarden/internal/metrics"
	"github.com/roadwarden/roadwarden/internal/models"
)

// SessionCookieName is the cookie carrying the stable session identifier.
const SessionCookieName = "rw_session"

const sessionCookieMaxAge = 90 * 24 * 3600

var ErrRequestLogNotFound = errors.New("request log not found")

// CaptureService records inbound traffic: it resolves or creates the
// SessionLog for the caller and writes the immutable RequestLog snapshot the
// evaluator counts against.
type CaptureService struct {
	db         *gorm.DB
	classifier *ClassifierService
	ignore     []*regexp.Regexp
}

// NewCaptureService builds a capture service. Ignore patterns that fail to
// compile are dropped with a warning so one bad pattern cannot disable the
// ignore list.
func NewCaptureService(db *gorm.DB, classifier *ClassifierService, ignorePatterns []string) *CaptureService {
	var ignore []*regexp.Regexp
	for _, pattern := range ignorePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			logger.WithFields(map[string]interface{}{"pattern": pattern}).
				Warn("Dropping invalid capture ignore pattern")
			continue
		}
		ignore = append(ignore, re)
	}
	return &CaptureService{db: db, classifier: classifier, ignore: ignore}
}

// Ignored reports whether the URL bypasses capture entirely (health checks,
// assets and similar).
func (s *CaptureService) Ignored(url string) bool {
	for _, re := range s.ignore {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

// Capture records the request. It returns (nil, nil, nil) for ignored URLs:
// the no-op sentinel meaning no further evaluation happens for this request.
func (s *CaptureService) Capture(c *gin.Context, member *models.Member) (*models.SessionLog, *models.RequestLog, error) {
	url := c.Request.URL.RequestURI()
	if s.Ignored(url) {
		return nil, nil, nil
	}

	identifier, err := c.Cookie(SessionCookieName)
	if err != nil || identifier == "" {
		identifier = uuid.New().String()
		c.SetCookie(SessionCookieName, identifier, sessionCookieMaxAge, "/", "", false, true)
	}

	now := time.Now()
	session, err := s.resolveSession(identifier, c.ClientIP(), c.Request.UserAgent(), member, now)
	if err != nil {
		return nil, nil, err
	}

	types, err := s.classifier.Classify(url)
	if err != nil {
		return nil, nil, err
	}

	reqLog := &models.RequestLog{
		IPAddress:    c.ClientIP(),
		URL:          url,
		Verb:         c.Request.Method,
		UserAgent:    c.Request.UserAgent(),
		Types:        types,
		SessionLogID: session.ID,
		CreatedAt:    now,
	}
	if err := s.db.Create(reqLog).Error; err != nil {
		return nil, nil, err
	}
	metrics.IncRequestCaptured()

	return session, reqLog, nil
}

func (s *CaptureService) resolveSession(identifier, ip, userAgent string, member *models.Member, now time.Time) (*models.SessionLog, error) {
	var session models.SessionLog
	err := s.db.Where("session_identifier = ?", identifier).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		session = models.SessionLog{
			SessionIdentifier: identifier,
			IPAddress:         ip,
			UserAgent:         userAgent,
			LastAccessed:      now,
		}
		if member != nil {
			session.MemberID = &member.ID
		}
		if err := s.db.Create(&session).Error; err != nil {
			return nil, err
		}
		return &session, nil
	}
	if err != nil {
		return nil, err
	}

	session.IPAddress = ip
	session.UserAgent = userAgent
	session.LastAccessed = now
	if member != nil {
		session.MemberID = &member.ID
	}
	if err := s.db.Save(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// PatchStatusCode records the response status on an existing request log.
// This is the only mutation a RequestLog accepts after creation.
func (s *CaptureService) PatchStatusCode(requestLogID uint, status int) error {
	result := s.db.Model(&models.RequestLog{}).Where("id = ?", requestLogID).Update("status_code", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRequestLogNotFound
	}
	return nil
}

// RecordLoginAttempt appends a login attempt row. The auth layer calls this
// on every authentication; the evaluator only ever reads them.
func (s *CaptureService) RecordLoginAttempt(memberID *uint, ip string, status models.LoginAttemptStatus) error {
	attempt := models.LoginAttempt{
		MemberID:  memberID,
		IPAddress: ip,
		Status:    status,
		CreatedAt: time.Now(),
	}
	return s.db.Create(&attempt).Error
}
