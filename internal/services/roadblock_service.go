package services

import (
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/config"
	"github.com/roadwarden/roadwarden/internal/logger"
	"github.com/roadwarden/roadwarden/internal/metrics"
	"github.com/roadwarden/roadwarden/internal/models"
)

// ErrDuplicateRoadblock signals the data-integrity anomaly of more than one
// block record existing for a single session identifier.
var ErrDuplicateRoadblock = errors.New("multiple roadblocks for one session")

// RoadblockService runs the full rule set against captured requests and
// maintains the per-session block record: score accumulation, expiry capture,
// decay cycles and the block-check gate.
type RoadblockService struct {
	db        *gorm.DB
	evaluator *EvaluatorService
	notify    *NotifyService
	cfg       config.Config

	// Per-session locks serialize the read-modify-write on a block record.
	// Two concurrent requests for one session must not double-count or lose
	// a score increment.
	locks sync.Map // session identifier -> *sync.Mutex
}

func NewRoadblockService(db *gorm.DB, evaluator *EvaluatorService, notify *NotifyService, cfg config.Config) *RoadblockService {
	return &RoadblockService{db: db, evaluator: evaluator, notify: notify, cfg: cfg}
}

func (s *RoadblockService) lockSession(identifier string) func() {
	mu, _ := s.locks.LoadOrStore(identifier, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// EvaluateAll runs every enabled rule of the given phase against the request
// and folds infringements into the session's block record. postResponse
// selects the rules carrying a status-code filter, which only apply once the
// response has been served.
func (s *RoadblockService) EvaluateAll(session *models.SessionLog, request *models.RequestLog, member *models.Member, postResponse bool) (models.BlockStatus, error) {
	var rules []models.Rule
	if err := s.db.Preload("RequestTypes").Preload("RequestTypes.IPRules").
		Where("enabled = ?", true).Order("id asc").Find(&rules).Error; err != nil {
		return models.BlockStatusNone, err
	}

	ctx := &EvalContext{
		Session: *session,
		Request: *request,
		Member:  member,
		Source:  NewLiveDataSource(s.db),
		Now:     session.LastAccessed,
	}

	unlock := s.lockSession(session.SessionIdentifier)
	defer unlock()

	status := models.BlockStatusNone
	notifyMember := false
	var record *models.Roadblock

	for _, rule := range rules {
		if rule.PostResponse() != postResponse {
			continue
		}
		if s.evaluator.Evaluate(ctx, rule) {
			continue
		}

		// Rule triggered.
		metrics.IncInfringement()
		if record == nil {
			var err error
			record, err = s.getOrCreateRoadblock(session, request, member)
			if err != nil {
				return status, err
			}
		}

		if err := s.recordInfringement(record, rule, request, ctx.Trace()); err != nil {
			logger.WithFields(map[string]interface{}{"rule": rule.Title}).
				WithError(err).Error("Failed to record infringement")
		}

		ruleStatus, err := s.applyScore(record, rule, session)
		if err != nil {
			return status, err
		}
		status = status.Worse(ruleStatus)
		if rule.NotifyMember {
			notifyMember = true
		}
	}

	if status != models.BlockStatusNone && record != nil && s.notify != nil {
		s.notify.Dispatch(status, member, session, record, request, notifyMember)
	}

	return status, nil
}

// getOrCreateRoadblock returns the session's block record, creating it
// lazily on first trigger. Finding more than one record is an anomaly:
// creation aborts with an explicit error instead of silently picking one.
func (s *RoadblockService) getOrCreateRoadblock(session *models.SessionLog, request *models.RequestLog, member *models.Member) (*models.Roadblock, error) {
	var records []models.Roadblock
	if err := s.db.Preload("Rules").
		Where("session_identifier = ?", session.SessionIdentifier).Find(&records).Error; err != nil {
		return nil, err
	}

	switch len(records) {
	case 0:
		record := models.Roadblock{
			SessionIdentifier: session.SessionIdentifier,
			SessionAlias:      session.SessionAlias,
			IPAddress:         request.IPAddress,
			MemberID:          session.MemberID,
		}
		if member != nil {
			record.MemberID = &member.ID
		}
		if err := s.db.Create(&record).Error; err != nil {
			return nil, err
		}
		return &record, nil
	case 1:
		record := records[0]
		record.IPAddress = request.IPAddress
		if member != nil {
			record.MemberID = &member.ID
		}
		return &record, nil
	default:
		logger.WithFields(map[string]interface{}{
			"session_alias": session.SessionAlias,
			"count":         len(records),
		}).Error("Multiple roadblocks found for one session")
		return nil, ErrDuplicateRoadblock
	}
}

func (s *RoadblockService) recordInfringement(record *models.Roadblock, rule models.Rule, request *models.RequestLog, trace string) error {
	ruleID := rule.ID
	infringement := models.Infringement{
		RoadblockID: record.ID,
		RuleID:      &ruleID,
		RuleTitle:   rule.Title,
		URL:         request.URL,
		Verb:        request.Verb,
		IPAddress:   request.IPAddress,
		UserAgent:   request.UserAgent,
		Description: trace,
	}
	return s.db.Create(&infringement).Error
}

// applyScore folds one triggered rule into the record and classifies the
// outcome. Non-cumulative rules only score on first attachment; zero-score
// rules block the single request without touching the score; negative
// scores are informational and never block by themselves.
func (s *RoadblockService) applyScore(record *models.Roadblock, rule models.Rule, session *models.SessionLog) (models.BlockStatus, error) {
	attached := record.HasRule(rule.ID)
	threshold := s.cfg.ScoreThreshold
	status := models.BlockStatusNone

	switch {
	case rule.Score == 0:
		status = models.BlockStatusSingle

	case rule.Score < 0:
		status = models.BlockStatusInfo
		if !attached || rule.Cumulative {
			record.Score = clampScore(record.Score + rule.Score)
		}

	default:
		if !attached || rule.Cumulative {
			before := record.Score
			record.Score = clampScore(record.Score + rule.Score)
			switch {
			case before < threshold && record.Score >= threshold:
				expiry := session.LastAccessed.Add(s.cfg.ExpiryInterval)
				record.Expiry = &expiry
				status = models.BlockStatusFull
			case record.Score >= threshold:
				status = models.BlockStatusLatest
			default:
				status = models.BlockStatusPartial
			}
		} else {
			if record.Score >= threshold {
				status = models.BlockStatusLatest
			} else {
				status = models.BlockStatusPartial
			}
		}
	}

	if !attached {
		if err := s.db.Model(record).Association("Rules").Append(&models.Rule{ID: rule.ID}); err != nil {
			return status, err
		}
		record.Rules = append(record.Rules, rule)
	}
	if err := s.db.Save(record).Error; err != nil {
		return status, err
	}
	return status, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	return score
}

// CheckOK is the block-check gate: it reports whether the caller may be
// served. Expired block windows decay in place: score drops by the
// threshold, expiry extends by one interval and the cycle count increments;
// the decayed score decides the immediate verdict.
func (s *RoadblockService) CheckOK(session *models.SessionLog, member *models.Member) (bool, error) {
	unlock := s.lockSession(session.SessionIdentifier)
	defer unlock()

	q := s.db.Where("admin_override = ? AND score >= ?", false, s.cfg.ScoreThreshold)
	if member != nil {
		q = q.Where("member_id = ?", member.ID)
	} else {
		q = q.Where("session_identifier = ?", session.SessionIdentifier)
	}

	var records []models.Roadblock
	if err := q.Find(&records).Error; err != nil {
		return true, err
	}

	ok := true
	for i := range records {
		record := &records[i]
		if record.Expiry == nil || record.Expiry.After(session.LastAccessed) {
			ok = false
			continue
		}

		// Window expired: decay one cycle.
		record.Score = clampScore(record.Score - s.cfg.ScoreThreshold)
		expiry := record.Expiry.Add(s.cfg.ExpiryInterval)
		record.Expiry = &expiry
		record.CycleCount++
		if err := s.db.Save(record).Error; err != nil {
			return false, err
		}
		logger.WithFields(map[string]interface{}{
			"session_alias": record.SessionAlias,
			"score":         record.Score,
			"cycle":         record.CycleCount,
		}).Info("Roadblock decayed one cycle")

		if record.Score >= s.cfg.ScoreThreshold {
			ok = false
		}
	}
	return ok, nil
}

// SetAdminOverride toggles the manual override on a record. Overridden
// records never auto-block regardless of score.
func (s *RoadblockService) SetAdminOverride(id uint, override bool) error {
	result := s.db.Model(&models.Roadblock{}).Where("id = ?", id).Update("admin_override", override)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns block records ordered by most recent activity.
func (s *RoadblockService) List(limit int) ([]models.Roadblock, error) {
	var records []models.Roadblock
	q := s.db.Preload("Rules").Order("updated_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns one block record with its rules and infringements.
func (s *RoadblockService) Get(id uint) (*models.Roadblock, error) {
	var record models.Roadblock
	if err := s.db.Preload("Rules").Preload("Infringements").First(&record, id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// Expired reports whether a record's block window has fully lapsed relative
// to now, useful for admin views.
func (s *RoadblockService) Expired(record *models.Roadblock) bool {
	return record.Expiry != nil && record.Expiry.Before(time.Now())
}
