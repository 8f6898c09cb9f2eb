package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadwarden/roadwarden/internal/models"
)

func TestInspector_RunNotFound(t *testing.T) {
	db := setupTestDB(t)
	service := NewInspectorService(db, NewEvaluatorService(db, NewMembershipService(db)))

	_, err := service.Run(42)
	assert.ErrorIs(t, err, ErrInspectorNotFound)
}

func TestInspector_RuleGone(t *testing.T) {
	db := setupTestDB(t)
	service := NewInspectorService(db, NewEvaluatorService(db, NewMembershipService(db)))

	inspector := models.RuleInspector{RuleID: 999, Title: "orphan"}
	require.NoError(t, db.Create(&inspector).Error)

	_, err := service.Run(inspector.ID)
	assert.ErrorIs(t, err, ErrInspectorRuleGone)
}

func TestInspector_ExactTraceMatchPasses(t *testing.T) {
	db := setupTestDB(t)
	service := NewInspectorService(db, NewEvaluatorService(db, NewMembershipService(db)))

	rule := models.Rule{Title: "dormant", Enabled: false}
	require.NoError(t, db.Create(&rule).Error)

	inspector := models.RuleInspector{
		RuleID:         rule.ID,
		Title:          "disabled rule trace",
		IPAddress:      "9.9.9.9",
		ExpectedResult: "Rule dormant is disabled, skipping\n",
	}
	require.NoError(t, db.Create(&inspector).Error)

	result, err := service.Run(inspector.ID)
	require.NoError(t, err)
	assert.True(t, result.Passed, "trace diff ignores surrounding whitespace")

	var saved models.RuleInspector
	require.NoError(t, db.First(&saved, inspector.ID).Error)
	assert.Equal(t, "pass", saved.Result)
	require.NotNil(t, saved.LastRun)
	assert.Equal(t, result.Trace, saved.LastTrace)
}

func TestInspector_FixtureReplay(t *testing.T) {
	db := setupTestDB(t)
	service := NewInspectorService(db, NewEvaluatorService(db, NewMembershipService(db)))

	rt := models.RequestType{Title: "login"}
	require.NoError(t, db.Create(&rt).Error)
	require.NoError(t, db.Create(&models.URLRule{
		Title: "login url", Pattern: `^/login`, Order: 1, RequestTypeID: rt.ID, Enabled: true,
	}).Error)

	rule := models.Rule{
		Title: "login burst", Level: models.RuleLevelSession,
		Verb: "POST", Count: 3, StartOffset: 300, Enabled: true,
		RequestTypes: []models.RequestType{rt},
	}
	require.NoError(t, db.Create(&rule).Error)

	inspector := models.RuleInspector{
		RuleID:    rule.ID,
		Title:     "three posts in five minutes",
		IPAddress: "9.9.9.9",
		UserAgent: "fixture-agent",
		RequestFixtures: "0|/login|post|9.9.9.9|fixture-agent\n" +
			"60|/login|post|9.9.9.9|fixture-agent\n" +
			"120|/login|post|9.9.9.9|fixture-agent\n" +
			"garbage line without pipes",
		ExpectedResult: "will not match",
	}
	require.NoError(t, db.Create(&inspector).Error)

	result, err := service.Run(inspector.ID)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Trace, "Counted 3 matching requests")
	assert.Contains(t, result.Trace, "conditions met", "the fixture burst triggers the rule")

	var saved models.RuleInspector
	require.NoError(t, db.First(&saved, inspector.ID).Error)
	assert.Equal(t, "fail", saved.Result)
	assert.Equal(t, result.Trace, saved.LastTrace)
}

func TestInspector_RunRulePersistsEveryFixture(t *testing.T) {
	db := setupTestDB(t)
	service := NewInspectorService(db, NewEvaluatorService(db, NewMembershipService(db)))

	rule := models.Rule{Title: "dormant", Enabled: false}
	require.NoError(t, db.Create(&rule).Error)

	for _, title := range []string{"first", "second"} {
		require.NoError(t, db.Create(&models.RuleInspector{
			RuleID: rule.ID, Title: title,
			ExpectedResult: "Rule dormant is disabled, skipping",
		}).Error)
	}

	results, err := service.RunRule(rule.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		assert.True(t, result.Passed)
	}

	var ran int64
	db.Model(&models.RuleInspector{}).Where("result = ?", "pass").Count(&ran)
	assert.EqualValues(t, 2, ran)
}
