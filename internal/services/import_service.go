package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/logger"
	"github.com/roadwarden/roadwarden/internal/models"
)

// ImportSummary reports how a bulk import went. Malformed rows or cells are
// skipped, never fatal: the remainder of the file always processes.
type ImportSummary struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Warnings []string `json:"warnings,omitempty"`
}

func (s *ImportSummary) warn(format string, args ...interface{}) {
	s.Skipped++
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// ImportService loads CSV configuration exports into the rule tables.
// Conventions: list cells are comma-separated titles; compound cells use
// pipe-delimited tuples ("Permission|IPAddress" for IP rules,
// "TimeOffset|URL|Verb|IPAddress|UserAgent" for inspector fixtures).
type ImportService struct {
	db *gorm.DB
}

func NewImportService(db *gorm.DB) *ImportService {
	return &ImportService{db: db}
}

func readAll(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) > 0 {
		rows = rows[1:] // header
	}
	return rows, nil
}

// ImportRequestTypes imports rows of: Title, Description, IPRules.
// The IPRules cell is a comma list of "Permission|IPAddress" tuples.
func (s *ImportService) ImportRequestTypes(r io.Reader) (*ImportSummary, error) {
	rows, err := readAll(r)
	if err != nil {
		return nil, err
	}

	summary := &ImportSummary{}
	for i, row := range rows {
		if len(row) < 1 || strings.TrimSpace(row[0]) == "" {
			summary.warn("row %d: missing title", i+2)
			continue
		}

		rt := models.RequestType{Title: strings.TrimSpace(row[0])}
		if len(row) > 1 {
			rt.Description = strings.TrimSpace(row[1])
		}

		var existing models.RequestType
		err := s.db.Where("title = ?", rt.Title).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := s.db.Create(&rt).Error; err != nil {
				summary.warn("row %d: %v", i+2, err)
				continue
			}
		} else if err != nil {
			return summary, err
		} else {
			rt = existing
		}

		if len(row) > 2 {
			s.attachIPRules(&rt, row[2], summary, i+2)
		}
		summary.Imported++
	}
	return summary, nil
}

// attachIPRules parses "Permission|IPAddress" tuples and links them to the
// request type, creating the IP rule rows on demand.
func (s *ImportService) attachIPRules(rt *models.RequestType, cell string, summary *ImportSummary, rowNum int) {
	for _, tuple := range splitList(cell) {
		perm, addr, ok := strings.Cut(tuple, "|")
		if !ok {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("row %d: malformed ip rule tuple %q", rowNum, tuple))
			logger.WithFields(map[string]interface{}{"tuple": tuple}).Warn("Skipping malformed IP rule tuple")
			continue
		}
		permission := models.IPPermission(strings.ToLower(strings.TrimSpace(perm)))
		if permission != models.IPPermissionAllowed && permission != models.IPPermissionDenied {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("row %d: unknown permission %q", rowNum, perm))
			continue
		}
		addr = strings.TrimSpace(addr)
		if _, err := parseIPRange(addr); err != nil {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}

		var rule models.IPRule
		err := s.db.Where("permission = ? AND ip_address = ?", permission, addr).First(&rule).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rule = models.IPRule{Permission: permission, IPAddress: addr, Enabled: true}
			if err := s.db.Create(&rule).Error; err != nil {
				summary.Warnings = append(summary.Warnings, fmt.Sprintf("row %d: %v", rowNum, err))
				continue
			}
		} else if err != nil {
			continue
		}
		_ = s.db.Model(rt).Association("IPRules").Append(&rule)
	}
}

// ImportURLRules imports rows of: Title, Pattern, Order, RequestType, Enabled.
func (s *ImportService) ImportURLRules(r io.Reader) (*ImportSummary, error) {
	rows, err := readAll(r)
	if err != nil {
		return nil, err
	}

	summary := &ImportSummary{}
	for i, row := range rows {
		if len(row) < 4 {
			summary.warn("row %d: expected 4+ fields, got %d", i+2, len(row))
			continue
		}
		var rt models.RequestType
		if err := s.db.Where("title = ?", strings.TrimSpace(row[3])).First(&rt).Error; err != nil {
			summary.warn("row %d: unknown request type %q", i+2, row[3])
			continue
		}
		order, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil {
			summary.warn("row %d: bad order %q", i+2, row[2])
			continue
		}

		rule := models.URLRule{
			Title:         strings.TrimSpace(row[0]),
			Pattern:       strings.TrimSpace(row[1]),
			Order:         order,
			RequestTypeID: rt.ID,
			Enabled:       true,
		}
		if len(row) > 4 {
			rule.Enabled = parseBool(row[4], true)
		}
		if err := s.db.Where(models.URLRule{Title: rule.Title}).Assign(rule).FirstOrCreate(&models.URLRule{}).Error; err != nil {
			summary.warn("row %d: %v", i+2, err)
			continue
		}
		summary.Imported++
	}
	return summary, nil
}

// ImportRules imports rows of: Title, Level, Verb, IPMode, Count,
// StartOffset, LoginAttemptsNumber, LoginAttemptsStatus,
// LoginAttemptsStartOffset, Group, Permission, ExcludeGroup,
// ExcludeUnauthenticated, ExcludePermission, Score, Cumulative, Enabled,
// StatusCodes, NotifyMember, RequestTypes (comma list of titles).
func (s *ImportService) ImportRules(r io.Reader) (*ImportSummary, error) {
	rows, err := readAll(r)
	if err != nil {
		return nil, err
	}

	summary := &ImportSummary{}
	for i, row := range rows {
		if len(row) < 20 {
			summary.warn("row %d: expected 20 fields, got %d", i+2, len(row))
			continue
		}
		title := strings.TrimSpace(row[0])
		if title == "" {
			summary.warn("row %d: missing title", i+2)
			continue
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(row[14]), 64)
		if err != nil {
			summary.warn("row %d: bad score %q", i+2, row[14])
			continue
		}

		rule := models.Rule{
			Title:                    title,
			Level:                    models.RuleLevel(strings.ToLower(strings.TrimSpace(row[1]))),
			Verb:                     strings.TrimSpace(row[2]),
			IPMode:                   models.IPMode(strings.ToLower(strings.TrimSpace(row[3]))),
			Count:                    parseInt(row[4]),
			StartOffset:              parseInt(row[5]),
			LoginAttemptsNumber:      parseInt(row[6]),
			LoginAttemptsStatus:      models.LoginAttemptStatus(strings.ToLower(strings.TrimSpace(row[7]))),
			LoginAttemptsStartOffset: parseInt(row[8]),
			GroupCode:                strings.TrimSpace(row[9]),
			PermissionCode:           strings.TrimSpace(row[10]),
			ExcludeGroup:             parseBool(row[11], false),
			ExcludeUnauthenticated:   parseBool(row[12], false),
			ExcludePermission:        parseBool(row[13], false),
			Score:                    score,
			Cumulative:               parseBool(row[15], false),
			Enabled:                  parseBool(row[16], true),
			StatusCodes:              strings.TrimSpace(row[17]),
			NotifyMember:             parseBool(row[18], false),
		}

		var existing models.Rule
		err = s.db.Where("title = ?", title).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := s.db.Create(&rule).Error; err != nil {
				summary.warn("row %d: %v", i+2, err)
				continue
			}
		} else if err != nil {
			return summary, err
		} else {
			rule.ID = existing.ID
			if err := s.db.Save(&rule).Error; err != nil {
				summary.warn("row %d: %v", i+2, err)
				continue
			}
		}

		for _, rtTitle := range splitList(row[19]) {
			var rt models.RequestType
			if err := s.db.Where("title = ?", rtTitle).First(&rt).Error; err != nil {
				summary.Warnings = append(summary.Warnings,
					fmt.Sprintf("row %d: unknown request type %q", i+2, rtTitle))
				continue
			}
			_ = s.db.Model(&rule).Association("RequestTypes").Append(&rt)
		}
		summary.Imported++
	}
	return summary, nil
}

// ImportInspectors imports rows of: RuleTitle, Title, IPAddress, UserAgent,
// RequestFixtures, LoginFixtures, ExpectedResult. Fixture cells hold
// semicolon-separated pipe tuples which are stored newline-delimited.
func (s *ImportService) ImportInspectors(r io.Reader) (*ImportSummary, error) {
	rows, err := readAll(r)
	if err != nil {
		return nil, err
	}

	summary := &ImportSummary{}
	for i, row := range rows {
		if len(row) < 7 {
			summary.warn("row %d: expected 7 fields, got %d", i+2, len(row))
			continue
		}
		var rule models.Rule
		if err := s.db.Where("title = ?", strings.TrimSpace(row[0])).First(&rule).Error; err != nil {
			summary.warn("row %d: unknown rule %q", i+2, row[0])
			continue
		}

		inspector := models.RuleInspector{
			RuleID:          rule.ID,
			Title:           strings.TrimSpace(row[1]),
			IPAddress:       strings.TrimSpace(row[2]),
			UserAgent:       strings.TrimSpace(row[3]),
			RequestFixtures: tuplesToLines(row[4], 5, summary, i+2),
			LoginFixtures:   tuplesToLines(row[5], 3, summary, i+2),
			ExpectedResult:  row[6],
		}
		if err := s.db.Create(&inspector).Error; err != nil {
			summary.warn("row %d: %v", i+2, err)
			continue
		}
		summary.Imported++
	}
	return summary, nil
}

// tuplesToLines validates the field count of each pipe tuple and joins the
// valid ones with newlines. Malformed tuples are dropped with a warning.
func tuplesToLines(cell string, fieldCount int, summary *ImportSummary, rowNum int) string {
	var lines []string
	for _, tuple := range strings.Split(cell, ";") {
		tuple = strings.TrimSpace(tuple)
		if tuple == "" {
			continue
		}
		if len(strings.Split(tuple, "|")) != fieldCount {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("row %d: malformed fixture tuple %q", rowNum, tuple))
			continue
		}
		lines = append(lines, tuple)
	}
	return strings.Join(lines, "\n")
}

func splitList(cell string) []string {
	var out []string
	for _, part := range strings.Split(cell, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func parseBool(s string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	default:
		return fallback
	}
}
