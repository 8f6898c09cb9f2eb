package services

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/metrics"
	"github.com/roadwarden/roadwarden/internal/models"
)

// EvalContext carries one evaluation's inputs and its human-readable trace.
// The trace is reset per rule, persisted as the infringement description and
// diffed against expectations by the inspector harness.
type EvalContext struct {
	Session models.SessionLog
	Request models.RequestLog
	Member  *models.Member
	Source  DataSource

	// Now anchors every time window. Live evaluation sets it to the
	// session's LastAccessed; inspector runs pin it to a fixture time.
	Now time.Time

	trace []string
}

// Tracef appends a formatted line to the evaluation trace.
func (c *EvalContext) Tracef(format string, args ...interface{}) {
	c.trace = append(c.trace, fmt.Sprintf(format, args...))
}

// Trace returns the accumulated trace, one entry per line.
func (c *EvalContext) Trace() string {
	return strings.Join(c.trace, "\n")
}

func (c *EvalContext) resetTrace() {
	c.trace = c.trace[:0]
}

// Extension is an injected business-rule hook. Hooks run in registration
// order and their boolean results fold with max: any hook returning true
// short-circuits the evaluation to a pass.
type Extension func(ctx *EvalContext, rule models.Rule) bool

// EvaluatorService decides, per rule and per request, whether the rule's
// conditions are met by recent traffic.
//
// Boolean polarity, preserved from the scoring model this engine implements:
// Evaluate returns true when the rule is SATISFIED (no infringement) and
// false when the rule TRIGGERS. Every early return of true is a
// short-circuit pass; absence of enough matching traffic counts as
// satisfied, not as inapplicable.
type EvaluatorService struct {
	db           *gorm.DB
	membership   *MembershipService
	memberHooks  []Extension
	sessionHooks []Extension
}

func NewEvaluatorService(db *gorm.DB, membership *MembershipService) *EvaluatorService {
	return &EvaluatorService{db: db, membership: membership}
}

// RegisterMemberHook appends a member-level extension hook.
func (s *EvaluatorService) RegisterMemberHook(hook Extension) {
	s.memberHooks = append(s.memberHooks, hook)
}

// RegisterSessionHook appends a session-level extension hook.
func (s *EvaluatorService) RegisterSessionHook(hook Extension) {
	s.sessionHooks = append(s.sessionHooks, hook)
}

// foldHooks runs hooks in order and folds their results with max.
func foldHooks(hooks []Extension, ctx *EvalContext, rule models.Rule) bool {
	result := false
	for _, hook := range hooks {
		if hook(ctx, rule) {
			result = true
		}
	}
	return result
}

// Evaluate runs the full rule check against the context. True = satisfied.
func (s *EvaluatorService) Evaluate(ctx *EvalContext, rule models.Rule) bool {
	ctx.resetTrace()
	metrics.IncRuleEvaluated()

	if !rule.Enabled {
		ctx.Tracef("Rule %s is disabled, skipping", rule.Title)
		return true
	}

	switch rule.Level {
	case models.RuleLevelMember:
		return s.evaluateMember(ctx, rule)
	case models.RuleLevelGlobal:
		ctx.Tracef("Global evaluation for IP %s", ctx.Request.IPAddress)
		return s.evaluateScope(ctx, rule, ctx.Session, true)
	default:
		ctx.Tracef("Session evaluation for session %s", ctx.Session.SessionAlias)
		return s.evaluateScope(ctx, rule, ctx.Session, false)
	}
}

// evaluateMember requires an authenticated member, gates on login-attempt
// history, then fans out over every session belonging to the member. Any
// session triggering makes the whole rule trigger.
func (s *EvaluatorService) evaluateMember(ctx *EvalContext, rule models.Rule) bool {
	if ctx.Member == nil {
		ctx.Tracef("Member level rule with no authenticated member, infringement")
		return false
	}
	ctx.Tracef("Member evaluation for %s", ctx.Member.Email)

	if s.loginAttemptGate(ctx, rule) {
		return true
	}

	if len(s.memberHooks) > 0 && foldHooks(s.memberHooks, ctx, rule) {
		ctx.Tracef("Member extension hook passed the rule")
		return true
	}

	sessions, err := ctx.Source.SessionsForMember(ctx.Member.ID)
	if err != nil {
		ctx.Tracef("Failed to load member sessions: %v", err)
		return true
	}
	if len(sessions) == 0 {
		sessions = []models.SessionLog{ctx.Session}
	}

	for _, session := range sessions {
		ctx.Tracef("Evaluating member session %s", session.SessionAlias)
		if !s.evaluateScope(ctx, rule, session, false) {
			return false
		}
	}
	return true
}

// evaluateScope applies the request-type, IP and count filters for one
// session (or, when global, for the requesting IP across sessions), then the
// exclusion checks and the trailing login gate.
func (s *EvaluatorService) evaluateScope(ctx *EvalContext, rule models.Rule, session models.SessionLog, global bool) bool {
	if len(rule.RequestTypes) == 0 {
		ctx.Tracef("Rule %s has no request types, not applicable", rule.Title)
		return true
	}

	titles := make([]string, 0, len(rule.RequestTypes))
	for _, rt := range rule.RequestTypes {
		titles = append(titles, rt.Title)
	}

	filter := RequestFilter{
		TypeTitles:  titles,
		StatusCodes: rule.StatusCodeList(),
		Since:       session.LastAccessed.Add(-time.Duration(rule.StartOffset) * time.Second),
	}
	if !rule.VerbAny() {
		filter.Verb = strings.ToUpper(strings.TrimSpace(rule.Verb))
	}
	if global {
		filter.IPAddress = ctx.Request.IPAddress
	} else {
		filter.SessionLogID = session.ID
	}

	if rule.IPMode != models.IPModeAny && rule.IPMode != "" {
		if pass, done := s.applyIPMode(ctx, rule, &filter, global); done {
			return pass
		}
	}

	count, err := ctx.Source.CountRequests(filter)
	if err != nil {
		ctx.Tracef("Request count query failed: %v", err)
		return true
	}
	ctx.Tracef("Counted %d matching requests since %s (threshold %d)", count, filter.Since.Format(time.RFC3339), rule.Count)
	if count == 0 || count < int64(rule.Count) {
		ctx.Tracef("Not enough matching traffic, rule satisfied")
		return true
	}

	if s.exclusionGate(ctx, rule) {
		return true
	}

	if len(s.sessionHooks) > 0 && foldHooks(s.sessionHooks, ctx, rule) {
		ctx.Tracef("Session extension hook passed the rule")
		return true
	}

	if rule.Level != models.RuleLevelMember && s.loginAttemptGate(ctx, rule) {
		return true
	}

	ctx.Tracef("Rule %s conditions met, infringement", rule.Title)
	return false
}

// applyIPMode resolves the allow/deny IP lists attached to the rule's
// request types. done=true means the evaluation short-circuits with the
// returned pass value; otherwise the filter has been narrowed and the count
// check proceeds.
func (s *EvaluatorService) applyIPMode(ctx *EvalContext, rule models.Rule, filter *RequestFilter, global bool) (pass, done bool) {
	permission := models.IPPermissionAllowed
	if rule.IPMode == models.IPModeDenied {
		permission = models.IPPermissionDenied
	}

	set := collectIPSet(s.loadIPRules(rule.RequestTypes), permission)
	if set.Empty() {
		ctx.Tracef("No %s IP rules attached to the rule's request types, rule cannot apply", permission)
		return true, true
	}

	callerIP := ctx.Request.IPAddress
	inSet := set.Contains(callerIP)

	if permission == models.IPPermissionAllowed {
		if inSet {
			switch rule.IPMode {
			case models.IPModeAllowed:
				ctx.Tracef("IP %s is in the allowed list", callerIP)
				return true, true
			case models.IPModeAllowedGroup:
				if ctx.Member != nil {
					ok, err := s.membership.InGroup(ctx.Member.ID, rule.GroupCode)
					if err == nil && ok {
						ctx.Tracef("IP %s allowed and member in group %s", callerIP, rule.GroupCode)
						return true, true
					}
				}
				ctx.Tracef("IP %s allowed but group %s check failed, continuing", callerIP, rule.GroupCode)
			case models.IPModeAllowedPermission:
				if ctx.Member != nil {
					ok, err := s.membership.HasPermission(ctx.Member.ID, rule.PermissionCode)
					if err == nil && ok {
						ctx.Tracef("IP %s allowed and member holds permission %s", callerIP, rule.PermissionCode)
						return true, true
					}
				}
				ctx.Tracef("IP %s allowed but permission %s check failed, continuing", callerIP, rule.PermissionCode)
			}
			return false, false
		}

		if !global {
			// Count only traffic from outside the allowed list.
			filter.ExcludeIPs = set
			ctx.Tracef("IP %s not in the allowed list, counting other IPs only", callerIP)
		} else {
			ctx.Tracef("IP %s not in the allowed list, global count unfiltered", callerIP)
		}
		return false, false
	}

	// Denied polarity.
	if global {
		if !inSet {
			ctx.Tracef("IP %s is not in the denied list", callerIP)
			return true, true
		}
		ctx.Tracef("IP %s is in the denied list, continuing", callerIP)
		return false, false
	}
	filter.IncludeIPs = set
	ctx.Tracef("Counting requests from denied IPs only")
	return false, false
}

// loadIPRules ensures the request types carry their IP rule associations.
// Rules preloaded through the rule query already have them; inspector and
// test contexts may hand in bare request types.
func (s *EvaluatorService) loadIPRules(types []models.RequestType) []models.RequestType {
	loaded := make([]models.RequestType, 0, len(types))
	for _, rt := range types {
		if len(rt.IPRules) > 0 || s.db == nil {
			loaded = append(loaded, rt)
			continue
		}
		var full models.RequestType
		if err := s.db.Preload("IPRules").First(&full, rt.ID).Error; err != nil {
			loaded = append(loaded, rt)
			continue
		}
		loaded = append(loaded, full)
	}
	return loaded
}

// exclusionGate applies the group/permission exclusion flags. Checks run in
// a fixed order, each able to short-circuit a pass:
//
//  1. no member + ExcludeUnauthenticated        -> pass
//  2. group configured:
//     member in group  + ExcludeGroup           -> pass (exempt)
//     member not in group + !ExcludeGroup       -> pass (rule targets the group)
//  3. permission configured, same table as group.
//
// Anything else continues toward an infringement.
func (s *EvaluatorService) exclusionGate(ctx *EvalContext, rule models.Rule) bool {
	if ctx.Member == nil {
		if rule.ExcludeUnauthenticated {
			ctx.Tracef("Unauthenticated traffic is excluded from rule %s", rule.Title)
			return true
		}
		if rule.GroupCode != "" && !rule.ExcludeGroup {
			ctx.Tracef("Rule %s targets group %s only, caller unauthenticated", rule.Title, rule.GroupCode)
			return true
		}
		if rule.PermissionCode != "" && !rule.ExcludePermission {
			ctx.Tracef("Rule %s targets permission %s only, caller unauthenticated", rule.Title, rule.PermissionCode)
			return true
		}
		return false
	}

	if rule.GroupCode != "" {
		inGroup, err := s.membership.InGroup(ctx.Member.ID, rule.GroupCode)
		if err != nil {
			ctx.Tracef("Group lookup failed: %v", err)
			inGroup = false
		}
		if inGroup && rule.ExcludeGroup {
			ctx.Tracef("Member is in excluded group %s", rule.GroupCode)
			return true
		}
		if !inGroup && !rule.ExcludeGroup {
			ctx.Tracef("Member is outside targeted group %s", rule.GroupCode)
			return true
		}
	}

	if rule.PermissionCode != "" {
		hasPerm, err := s.membership.HasPermission(ctx.Member.ID, rule.PermissionCode)
		if err != nil {
			ctx.Tracef("Permission lookup failed: %v", err)
			hasPerm = false
		}
		if hasPerm && rule.ExcludePermission {
			ctx.Tracef("Member holds excluded permission %s", rule.PermissionCode)
			return true
		}
		if !hasPerm && !rule.ExcludePermission {
			ctx.Tracef("Member lacks targeted permission %s", rule.PermissionCode)
			return true
		}
	}

	return false
}

// loginAttemptGate counts login attempts in the rule's window. Returns true
// (short-circuit pass) when the rule has a login threshold and the attempt
// count does not exceed it: a low count is treated as not enough evidence,
// so the rule is satisfied at this gate.
func (s *EvaluatorService) loginAttemptGate(ctx *EvalContext, rule models.Rule) bool {
	if rule.LoginAttemptsNumber <= 0 {
		return false
	}

	filter := LoginFilter{
		Status: rule.LoginAttemptsStatus,
		Since:  ctx.Now.Add(-time.Duration(rule.LoginAttemptsStartOffset) * time.Second),
	}
	if ctx.Member != nil {
		filter.MemberID = ctx.Member.ID
	} else {
		filter.IPAddress = ctx.Request.IPAddress
	}

	count, err := ctx.Source.CountLoginAttempts(filter)
	if err != nil {
		ctx.Tracef("Login attempt count query failed: %v", err)
		return true
	}
	ctx.Tracef("Counted %d login attempts (threshold %d)", count, rule.LoginAttemptsNumber)
	if count <= int64(rule.LoginAttemptsNumber) {
		ctx.Tracef("Login attempts within threshold, rule satisfied")
		return true
	}
	return false
}
