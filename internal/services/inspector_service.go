package services

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/logger"
	"github.com/roadwarden/roadwarden/internal/models"
)

var (
	ErrInspectorNotFound = errors.New("rule inspector not found")
	ErrInspectorRuleGone = errors.New("inspected rule no longer exists")
)

// InspectorResult is the outcome of one inspector run.
type InspectorResult struct {
	InspectorID uint   `json:"inspector_id"`
	Title       string `json:"title"`
	Passed      bool   `json:"passed"`
	Trace       string `json:"trace"`
	Expected    string `json:"expected"`
}

// InspectorService replays a rule's synthetic fixtures through the evaluator
// and diffs the produced trace against the stored expectation. It is the
// engine's built-in regression runner: the same evaluation code as the live
// path, fed by a fixture data source instead of live history.
type InspectorService struct {
	db        *gorm.DB
	evaluator *EvaluatorService
}

func NewInspectorService(db *gorm.DB, evaluator *EvaluatorService) *InspectorService {
	return &InspectorService{db: db, evaluator: evaluator}
}

// RunRule executes every inspector attached to the rule and persists each
// fixture's Result/LastRun.
func (s *InspectorService) RunRule(ruleID uint) ([]InspectorResult, error) {
	var inspectors []models.RuleInspector
	if err := s.db.Where("rule_id = ?", ruleID).Find(&inspectors).Error; err != nil {
		return nil, err
	}

	results := make([]InspectorResult, 0, len(inspectors))
	for _, inspector := range inspectors {
		result, err := s.run(&inspector)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, nil
}

// Run executes a single inspector by ID.
func (s *InspectorService) Run(inspectorID uint) (*InspectorResult, error) {
	var inspector models.RuleInspector
	if err := s.db.First(&inspector, inspectorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInspectorNotFound
		}
		return nil, err
	}
	return s.run(&inspector)
}

func (s *InspectorService) run(inspector *models.RuleInspector) (*InspectorResult, error) {
	var rule models.Rule
	if err := s.db.Preload("RequestTypes").Preload("RequestTypes.IPRules").
		First(&rule, inspector.RuleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInspectorRuleGone
		}
		return nil, err
	}

	now := time.Now()
	session := models.SessionLog{
		ID:                1,
		SessionIdentifier: "inspector",
		SessionAlias:      "inspector",
		IPAddress:         inspector.IPAddress,
		UserAgent:         inspector.UserAgent,
		LastAccessed:      now,
		MemberID:          inspector.MemberID,
	}

	source := &FixtureDataSource{Sessions: []models.SessionLog{session}}
	current := s.loadFixtures(inspector, source, &session, now)

	var member *models.Member
	if inspector.MemberID != nil {
		var m models.Member
		if err := s.db.Preload("Groups").First(&m, *inspector.MemberID).Error; err == nil {
			member = &m
		}
	}

	ctx := &EvalContext{
		Session: session,
		Request: current,
		Member:  member,
		Source:  source,
		Now:     now,
	}
	s.evaluator.Evaluate(ctx, rule)
	trace := ctx.Trace()

	passed := strings.TrimSpace(trace) == strings.TrimSpace(inspector.ExpectedResult)
	result := "fail"
	if passed {
		result = "pass"
	}
	inspector.Result = result
	inspector.LastRun = &now
	inspector.LastTrace = trace
	if err := s.db.Save(inspector).Error; err != nil {
		return nil, err
	}

	return &InspectorResult{
		InspectorID: inspector.ID,
		Title:       inspector.Title,
		Passed:      passed,
		Trace:       trace,
		Expected:    inspector.ExpectedResult,
	}, nil
}

// loadFixtures parses the pipe-delimited fixture cells into the fixture
// data source and returns the request under evaluation (the most recent
// fixture request, or a bare synthetic one when none parse). Malformed
// tuples are skipped, never fatal.
func (s *InspectorService) loadFixtures(inspector *models.RuleInspector, source *FixtureDataSource, session *models.SessionLog, now time.Time) models.RequestLog {
	current := models.RequestLog{
		IPAddress:    inspector.IPAddress,
		URL:          "/",
		Verb:         "GET",
		UserAgent:    inspector.UserAgent,
		SessionLogID: session.ID,
		CreatedAt:    now,
	}
	bestOffset := -1

	for _, line := range splitFixtureLines(inspector.RequestFixtures) {
		fields := strings.Split(line, "|")
		if len(fields) != 5 {
			logger.WithFields(map[string]interface{}{"inspector": inspector.Title, "line": line}).
				Warn("Skipping malformed request fixture")
			continue
		}
		offset, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil || offset < 0 {
			logger.WithFields(map[string]interface{}{"inspector": inspector.Title, "line": line}).
				Warn("Skipping request fixture with bad time offset")
			continue
		}
		log := models.RequestLog{
			URL:          strings.TrimSpace(fields[1]),
			Verb:         strings.ToUpper(strings.TrimSpace(fields[2])),
			IPAddress:    strings.TrimSpace(fields[3]),
			UserAgent:    strings.TrimSpace(fields[4]),
			SessionLogID: session.ID,
			CreatedAt:    now.Add(-time.Duration(offset) * time.Second),
		}
		if log.Types == "" {
			// Classify fixtures against the live URL rules so the rule's
			// request-type filter behaves as it would in production.
			if types, err := NewClassifierService(s.db).Classify(log.URL); err == nil {
				log.Types = types
			}
		}
		source.Requests = append(source.Requests, log)

		if bestOffset == -1 || offset < bestOffset {
			bestOffset = offset
			current = log
		}
	}

	for _, line := range splitFixtureLines(inspector.LoginFixtures) {
		fields := strings.Split(line, "|")
		if len(fields) != 3 {
			logger.WithFields(map[string]interface{}{"inspector": inspector.Title, "line": line}).
				Warn("Skipping malformed login fixture")
			continue
		}
		offset, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil || offset < 0 {
			continue
		}
		attempt := models.LoginAttempt{
			Status:    models.LoginAttemptStatus(strings.ToLower(strings.TrimSpace(fields[1]))),
			IPAddress: strings.TrimSpace(fields[2]),
			MemberID:  inspector.MemberID,
			CreatedAt: now.Add(-time.Duration(offset) * time.Second),
		}
		source.Logins = append(source.Logins, attempt)
	}

	return current
}

func splitFixtureLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
