package services

import (
	"fmt"
	"regexp"
	"time"

	"github.com/containrrr/shoutrrr"
	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/config"
	"github.com/roadwarden/roadwarden/internal/logger"
	"github.com/roadwarden/roadwarden/internal/metrics"
	"github.com/roadwarden/roadwarden/internal/models"
)

// NotifyService turns evaluation outcomes into internal notification rows
// and external shoutrrr dispatches. Sending is best-effort and asynchronous:
// a failed or slow delivery never affects the blocking verdict.
type NotifyService struct {
	DB  *gorm.DB
	cfg config.Config
}

func NewNotifyService(db *gorm.DB, cfg config.Config) *NotifyService {
	return &NotifyService{DB: db, cfg: cfg}
}

var discordWebhookRegex = regexp.MustCompile(`^https://discord(?:app)?\.com/api/webhooks/(\d+)/([a-zA-Z0-9_-]+)`)

func normalizeURL(serviceType, rawURL string) string {
	if serviceType == "discord" {
		matches := discordWebhookRegex.FindStringSubmatch(rawURL)
		if len(matches) == 3 {
			id := matches[1]
			token := matches[2]
			return fmt.Sprintf("discord://%s@%s", token, id)
		}
	}
	return rawURL
}

// Internal notifications (DB).

func (s *NotifyService) Create(nType models.NotificationType, title, message string) (*models.Notification, error) {
	notification := &models.Notification{
		Type:    nType,
		Title:   title,
		Message: message,
		Read:    false,
	}
	result := s.DB.Create(notification)
	return notification, result.Error
}

func (s *NotifyService) List(unreadOnly bool) ([]models.Notification, error) {
	var notifications []models.Notification
	query := s.DB.Order("created_at desc")
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	result := query.Find(&notifications)
	return notifications, result.Error
}

func (s *NotifyService) MarkAsRead(id string) error {
	return s.DB.Model(&models.Notification{}).Where("id = ?", id).Update("read", true).Error
}

func (s *NotifyService) MarkAllAsRead() error {
	return s.DB.Model(&models.Notification{}).Where("read = ?", false).Update("read", true).Error
}

// Dispatch fans an evaluation outcome out to the admin channels and, when
// requested by a triggered rule, to the member. Resends are throttled per
// block record via LastNotified/LastNotifiedMember and the configured
// minimum interval.
func (s *NotifyService) Dispatch(status models.BlockStatus, member *models.Member, session *models.SessionLog, record *models.Roadblock, request *models.RequestLog, notifyMember bool) {
	now := time.Now()

	if s.shouldNotify(record.LastNotified, now) {
		record.LastNotified = &now
		title, message := s.compose(status, session, record, request)

		nType := models.NotificationTypeWarning
		if status.Blocking() {
			nType = models.NotificationTypeError
		}
		if _, err := s.Create(nType, title, message); err != nil {
			logger.Log().WithError(err).Error("Failed to store notification")
		}
		go s.sendExternal(status, title, message)
	}

	if notifyMember && member != nil && s.shouldNotify(record.LastNotifiedMember, now) {
		record.LastNotifiedMember = &now
		go s.sendMember(member, status)
	}

	if err := s.DB.Model(record).Select("last_notified", "last_notified_member").
		Updates(map[string]interface{}{
			"last_notified":        record.LastNotified,
			"last_notified_member": record.LastNotifiedMember,
		}).Error; err != nil {
		logger.Log().WithError(err).Error("Failed to persist notification timestamps")
	}
}

func (s *NotifyService) shouldNotify(last *time.Time, now time.Time) bool {
	return last == nil || now.Sub(*last) >= s.cfg.NotifyInterval
}

func (s *NotifyService) compose(status models.BlockStatus, session *models.SessionLog, record *models.Roadblock, request *models.RequestLog) (string, string) {
	var title string
	switch status {
	case models.BlockStatusFull:
		title = "Session blocked"
	case models.BlockStatusSingle:
		title = "Request blocked"
	case models.BlockStatusLatest:
		title = "Blocked session re-triggered"
	case models.BlockStatusPartial:
		title = "Session score raised"
	default:
		title = "Rule triggered"
	}
	message := fmt.Sprintf("Session %s (IP %s) scored %.1f after %s %s",
		record.SessionAlias, session.IPAddress, record.Score, request.Verb, request.URL)
	return title, message
}

func (s *NotifyService) sendExternal(status models.BlockStatus, title, message string) {
	var providers []models.NotificationProvider
	if err := s.DB.Where("enabled = ?", true).Find(&providers).Error; err != nil {
		logger.Log().WithError(err).Error("Failed to fetch notification providers")
		return
	}

	for _, provider := range providers {
		if status.Blocking() && !provider.NotifyBlocks {
			continue
		}
		if !status.Blocking() && !provider.NotifyAdvisory {
			continue
		}

		url := normalizeURL(provider.Type, provider.URL)
		msg := fmt.Sprintf("%s\n\n%s", title, message)
		metrics.IncNotificationSent()
		if err := shoutrrr.Send(url, msg); err != nil {
			logger.WithFields(map[string]interface{}{"provider": provider.Name}).
				WithError(err).Error("Failed to send notification")
		}
	}
}

// sendMember notifies the affected member through the member-facing
// providers. Delivery shares the external path; the member's address rides
// in the message since provider URLs carry the transport credentials.
func (s *NotifyService) sendMember(member *models.Member, status models.BlockStatus) {
	title := "Your access has been restricted"
	if !status.Blocking() {
		title = "Unusual activity on your account"
	}
	message := fmt.Sprintf("Account %s: %s. Contact the site administrator for details.", member.Email, title)
	s.sendExternal(status, title, message)
}

// TestProvider sends a test message through a provider configuration.
func (s *NotifyService) TestProvider(provider models.NotificationProvider) error {
	url := normalizeURL(provider.Type, provider.URL)
	return shoutrrr.Send(url, "Test notification from Roadwarden")
}

// Provider management.

func (s *NotifyService) ListProviders() ([]models.NotificationProvider, error) {
	var providers []models.NotificationProvider
	result := s.DB.Find(&providers)
	return providers, result.Error
}

func (s *NotifyService) CreateProvider(provider *models.NotificationProvider) error {
	return s.DB.Create(provider).Error
}

func (s *NotifyService) UpdateProvider(provider *models.NotificationProvider) error {
	return s.DB.Save(provider).Error
}

func (s *NotifyService) DeleteProvider(id string) error {
	return s.DB.Delete(&models.NotificationProvider{}, "id = ?", id).Error
}
