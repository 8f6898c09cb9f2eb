package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadwarden/roadwarden/internal/models"
)

func TestImport_RequestTypes(t *testing.T) {
	db := setupTestDB(t)
	service := NewImportService(db)

	csv := strings.Join([]string{
		"Title,Description,IPRules",
		`login,Auth endpoints,"allowed|10.0.0.0/8,denied|1.2.3.4"`,
		`search,Search endpoints,`,
		`,missing title,`,
		`broken,Bad tuples,"no-pipe-here,maybe|999.9.9.9,denied|5.6.7.8"`,
	}, "\n")

	summary, err := service.ImportRequestTypes(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Imported)
	assert.Equal(t, 1, summary.Skipped)
	assert.NotEmpty(t, summary.Warnings)

	var login models.RequestType
	require.NoError(t, db.Preload("IPRules").Where("title = ?", "login").First(&login).Error)
	assert.Len(t, login.IPRules, 2)

	var broken models.RequestType
	require.NoError(t, db.Preload("IPRules").Where("title = ?", "broken").First(&broken).Error)
	assert.Len(t, broken.IPRules, 1, "only the valid tuple attaches")
	assert.Equal(t, "5.6.7.8", broken.IPRules[0].IPAddress)

	// Re-import must not duplicate existing types.
	summary, err = service.ImportRequestTypes(strings.NewReader(csv))
	require.NoError(t, err)
	var count int64
	db.Model(&models.RequestType{}).Where("title = ?", "login").Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestImport_URLRules(t *testing.T) {
	db := setupTestDB(t)
	service := NewImportService(db)

	require.NoError(t, db.Create(&models.RequestType{Title: "login"}).Error)

	csv := strings.Join([]string{
		"Title,Pattern,Order,RequestType,Enabled",
		`login page,^/login,1,login,true`,
		`disabled page,^/old-login,2,login,false`,
		`orphan,^/x,3,missing-type,true`,
		`bad order,^/y,abc,login,true`,
	}, "\n")

	summary, err := service.ImportURLRules(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Imported)
	assert.Equal(t, 2, summary.Skipped)

	var rules []models.URLRule
	require.NoError(t, db.Order("sort_order asc").Find(&rules).Error)
	require.Len(t, rules, 2)
	assert.True(t, rules[0].Enabled)
	assert.False(t, rules[1].Enabled)
}

func TestImport_Rules(t *testing.T) {
	db := setupTestDB(t)
	service := NewImportService(db)

	require.NoError(t, db.Create(&models.RequestType{Title: "login"}).Error)
	require.NoError(t, db.Create(&models.RequestType{Title: "search"}).Error)

	header := "Title,Level,Verb,IPMode,Count,StartOffset,LoginAttemptsNumber,LoginAttemptsStatus,LoginAttemptsStartOffset,Group,Permission,ExcludeGroup,ExcludeUnauthenticated,ExcludePermission,Score,Cumulative,Enabled,StatusCodes,NotifyMember,RequestTypes"
	csv := strings.Join([]string{
		header,
		`Brute force,global,POST,any,10,300,5,failed,300,,,no,no,no,100,no,yes,,no,"login"`,
		`Hammering,session,any,any,30,60,0,,0,staff,,yes,no,no,50,yes,yes,,yes,"login,search"`,
		`Short row,session,any`,
		`Bad score,session,any,any,1,0,0,,0,,,no,no,no,not-a-number,no,yes,,no,login`,
	}, "\n")

	summary, err := service.ImportRules(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Imported)
	assert.Equal(t, 2, summary.Skipped)

	var brute models.Rule
	require.NoError(t, db.Preload("RequestTypes").Where("title = ?", "Brute force").First(&brute).Error)
	assert.Equal(t, models.RuleLevelGlobal, brute.Level)
	assert.Equal(t, "POST", brute.Verb)
	assert.Equal(t, 10, brute.Count)
	assert.Equal(t, 5, brute.LoginAttemptsNumber)
	assert.Equal(t, models.LoginAttemptFailed, brute.LoginAttemptsStatus)
	assert.Equal(t, 100.0, brute.Score)
	assert.Len(t, brute.RequestTypes, 1)

	var hammering models.Rule
	require.NoError(t, db.Preload("RequestTypes").Where("title = ?", "Hammering").First(&hammering).Error)
	assert.True(t, hammering.Cumulative)
	assert.True(t, hammering.ExcludeGroup)
	assert.Equal(t, "staff", hammering.GroupCode)
	assert.Len(t, hammering.RequestTypes, 2)

	// Re-importing updates by title instead of duplicating.
	updated := strings.Join([]string{
		header,
		`Brute force,global,POST,any,20,300,5,failed,300,,,no,no,no,100,no,yes,,no,login`,
	}, "\n")
	_, err = service.ImportRules(strings.NewReader(updated))
	require.NoError(t, err)

	var count int64
	db.Model(&models.Rule{}).Where("title = ?", "Brute force").Count(&count)
	assert.EqualValues(t, 1, count)
	require.NoError(t, db.Where("title = ?", "Brute force").First(&brute).Error)
	assert.Equal(t, 20, brute.Count)
}

func TestImport_Inspectors(t *testing.T) {
	db := setupTestDB(t)
	service := NewImportService(db)

	require.NoError(t, db.Create(&models.Rule{Title: "Brute force", Enabled: true}).Error)

	csv := strings.Join([]string{
		"RuleTitle,Title,IPAddress,UserAgent,RequestFixtures,LoginFixtures,ExpectedResult",
		`Brute force,happy path,9.9.9.9,test-agent,"0|/login|POST|9.9.9.9|test-agent;30|/login|POST|9.9.9.9|test-agent;malformed-tuple","0|failed|9.9.9.9;10|failed",expected trace`,
		`Missing rule,x,1.1.1.1,ua,,,trace`,
	}, "\n")

	summary, err := service.ImportInspectors(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, 1, summary.Skipped)

	var inspector models.RuleInspector
	require.NoError(t, db.Where("title = ?", "happy path").First(&inspector).Error)
	assert.Len(t, strings.Split(inspector.RequestFixtures, "\n"), 2, "malformed tuple dropped")
	assert.Equal(t, "0|failed|9.9.9.9", inspector.LoginFixtures, "short login tuple dropped")
	assert.Equal(t, "expected trace", inspector.ExpectedResult)
}
