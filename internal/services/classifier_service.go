package services

import (
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/logger"
	"github.com/roadwarden/roadwarden/internal/models"
)

// ClassifierService resolves inbound URLs to request types via the ordered
// URL rule list.
type ClassifierService struct {
	db *gorm.DB
}

func NewClassifierService(db *gorm.DB) *ClassifierService {
	return &ClassifierService{db: db}
}

func (s *ClassifierService) enabledRules() ([]models.URLRule, error) {
	var rules []models.URLRule
	if err := s.db.Where("enabled = ?", true).Order("sort_order asc").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// Classify tests the URL against every enabled rule in ascending order and
// returns the comma-joined titles of all matching request types. An empty
// result means the request is untyped and most rules will not apply to it.
func (s *ClassifierService) Classify(url string) (string, error) {
	rules, err := s.enabledRules()
	if err != nil {
		return "", err
	}

	seen := make(map[uint]bool)
	var titles []string
	for _, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			logger.WithFields(map[string]interface{}{"url_rule": rule.Title, "pattern": rule.Pattern}).
				Warn("Skipping URL rule with invalid pattern")
			continue
		}
		if !re.MatchString(url) {
			continue
		}
		if seen[rule.RequestTypeID] {
			continue
		}
		seen[rule.RequestTypeID] = true

		var rt models.RequestType
		if err := s.db.First(&rt, rule.RequestTypeID).Error; err != nil {
			// Request type deleted while still referenced: skip the rule.
			continue
		}
		titles = append(titles, rt.Title)
	}
	return strings.Join(titles, ","), nil
}

// ClassifyFirst returns the ID of the request type mapped by the first
// matching enabled rule, or 0 when no rule matches.
func (s *ClassifierService) ClassifyFirst(url string) (uint, error) {
	rules, err := s.enabledRules()
	if err != nil {
		return 0, err
	}

	for _, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			continue
		}
		if re.MatchString(url) {
			return rule.RequestTypeID, nil
		}
	}
	return 0, nil
}
