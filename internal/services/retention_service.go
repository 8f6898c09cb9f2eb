package services

import (
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/config"
	"github.com/roadwarden/roadwarden/internal/logger"
	"github.com/roadwarden/roadwarden/internal/models"
)

// RetentionService truncates aged history: request logs, stale sessions and
// login attempts past their configured retention. Block records are never
// hard-deleted here; they decay through the score machinery.
type RetentionService struct {
	db   *gorm.DB
	cfg  config.Config
	cron *cron.Cron
}

func NewRetentionService(db *gorm.DB, cfg config.Config) *RetentionService {
	return &RetentionService{db: db, cfg: cfg}
}

// TruncateResult counts the rows removed by one truncation pass.
type TruncateResult struct {
	RequestLogs   int64 `json:"request_logs"`
	SessionLogs   int64 `json:"session_logs"`
	LoginAttempts int64 `json:"login_attempts"`
}

// Truncate removes aged rows in one pass. Sessions are only removed when
// stale AND free of block records, so active roadblocks keep their context.
func (s *RetentionService) Truncate() (*TruncateResult, error) {
	now := time.Now()
	result := &TruncateResult{}

	res := s.db.Where("created_at < ?", now.Add(-s.cfg.RequestLogMaxAge)).Delete(&models.RequestLog{})
	if res.Error != nil {
		return nil, res.Error
	}
	result.RequestLogs = res.RowsAffected

	res = s.db.Where("created_at < ?", now.Add(-s.cfg.LoginAttemptMaxAge)).Delete(&models.LoginAttempt{})
	if res.Error != nil {
		return nil, res.Error
	}
	result.LoginAttempts = res.RowsAffected

	res = s.db.Where("last_accessed < ?", now.Add(-s.cfg.SessionLogMaxAge)).
		Where("session_identifier NOT IN (?)",
			s.db.Model(&models.Roadblock{}).Select("session_identifier")).
		Delete(&models.SessionLog{})
	if res.Error != nil {
		return nil, res.Error
	}
	result.SessionLogs = res.RowsAffected

	logger.WithFields(map[string]interface{}{
		"request_logs":   result.RequestLogs,
		"session_logs":   result.SessionLogs,
		"login_attempts": result.LoginAttempts,
	}).Info("Truncated aged history")

	return result, nil
}

// Start schedules truncation on the configured cron expression.
func (s *RetentionService) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.cfg.TruncateSchedule, func() {
		if _, err := s.Truncate(); err != nil {
			logger.Log().WithError(err).Error("Scheduled truncation failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for a running job to finish.
func (s *RetentionService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
