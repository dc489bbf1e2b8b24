// internal/rules/registry.go
package rules

import (
	"context"
	"fmt"
	"sort"
)

// Stable rule codes. These are a public contract: persisted overrides,
// audit trails, and the admin UI all reference them, so renumbering
// breaks compatibility.
const (
	CodeMaxActive         = "ACC-001"
	CodeMaxPerWeek        = "ACC-002"
	CodeMaxMinutesPerWeek = "ACC-003"
	CodeOverlap           = "ACC-004"
	CodeAdvanceWindow     = "ACC-005"
	CodeLeadTime          = "ACC-006"
	CodeCancelCooldown    = "ACC-007"
	CodeMaxPerDay         = "ACC-008"
	CodeStrikeLockout     = "ACC-009"
	CodePrimeEligibility  = "ACC-010"
	CodeRateLimit         = "ACC-011"

	CodeCourtStatus        = "CRT-001"
	CodePrimeMaxDuration   = "CRT-002"
	CodePrimeWeeklyCap     = "CRT-003"
	CodeOperatingHours     = "CRT-004"
	CodeSlotAlignment      = "CRT-005"
	CodeBlackout           = "CRT-006"
	CodeBuffer             = "CRT-007"
	CodeAllowedActivities  = "CRT-008"
	CodeAmenityConcurrency = "CRT-009"
	CodeConsecutiveLimit   = "CRT-010"
	CodeReleaseTime        = "CRT-011"

	CodeHouseholdMembers = "HH-001"
	CodeHouseholdActive  = "HH-002"
	CodeHouseholdPrime   = "HH-003"
)

// Evaluator is one independently pluggable policy rule. Evaluate must be
// total: given a well-formed context it returns a RuleResult and a nil
// error. Only the evaluators that perform their own scoped reads
// (CRT-009, ACC-011) may return a TransientError.
type Evaluator interface {
	Code() string
	Name() string
	Category() Category
	Order() int
	Evaluate(ctx context.Context, rc *RuleContext) (RuleResult, error)
}

// ruleInfo carries the identity shared by every evaluator implementation.
type ruleInfo struct {
	code     string
	name     string
	category Category
	order    int
}

func (r ruleInfo) Code() string       { return r.code }
func (r ruleInfo) Name() string       { return r.name }
func (r ruleInfo) Category() Category { return r.category }
func (r ruleInfo) Order() int         { return r.order }

func (r ruleInfo) pass() RuleResult {
	return RuleResult{RuleCode: r.code, RuleName: r.name, Passed: true, Severity: SeverityError}
}

// passWarn is a passing result that still carries an advisory message.
func (r ruleInfo) passWarn(msg string, details map[string]any) RuleResult {
	return RuleResult{RuleCode: r.code, RuleName: r.name, Passed: true, Severity: SeverityWarning, Message: msg, Details: details}
}

func (r ruleInfo) block(msg string, details map[string]any) RuleResult {
	return RuleResult{RuleCode: r.code, RuleName: r.name, Passed: false, Severity: SeverityError, Message: msg, Details: details}
}

func (r ruleInfo) warn(msg string, details map[string]any) RuleResult {
	return RuleResult{RuleCode: r.code, RuleName: r.name, Passed: false, Severity: SeverityWarning, Message: msg, Details: details}
}

// Engine owns the evaluator catalog and the reads interface used to
// assemble contexts.
type Engine struct {
	reads      Reads
	limiter    AttemptLimiter
	clock      Clock
	evaluators []Evaluator
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects a deterministic clock for tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithAttemptLimiter wires the booking-attempt limiter behind ACC-011.
// Without one the rule passes unconditionally.
func WithAttemptLimiter(l AttemptLimiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// New builds an engine with the full rule catalog in evaluation order.
func New(reads Reads, opts ...Option) (*Engine, error) {
	if reads == nil {
		return nil, fmt.Errorf("rules engine requires a reads interface")
	}
	e := &Engine{reads: reads, clock: realClock{}}
	for _, opt := range opts {
		opt(e)
	}
	e.evaluators = catalog(e)

	seen := make(map[string]struct{}, len(e.evaluators))
	for _, ev := range e.evaluators {
		if _, dup := seen[ev.Code()]; dup {
			return nil, fmt.Errorf("duplicate rule code %s", ev.Code())
		}
		seen[ev.Code()] = struct{}{}
	}
	sort.SliceStable(e.evaluators, func(i, j int) bool {
		return e.evaluators[i].Order() < e.evaluators[j].Order()
	})
	return e, nil
}

// Evaluators exposes the catalog for admin tooling (rule listings).
func (e *Engine) Evaluators() []Evaluator {
	out := make([]Evaluator, len(e.evaluators))
	copy(out, e.evaluators)
	return out
}

// catalog is the fixed rule set. New rules slot in here without touching
// the pipeline. Account rules order in the 100s, court in the 200s,
// household in the 300s.
func catalog(e *Engine) []Evaluator {
	return []Evaluator{
		maxActiveRule{ruleInfo{CodeMaxActive, "Max Active Reservations", CategoryAccount, 100}},
		maxPerWeekRule{ruleInfo{CodeMaxPerWeek, "Max Reservations Per Week", CategoryAccount, 105}},
		maxMinutesPerWeekRule{ruleInfo{CodeMaxMinutesPerWeek, "Max Minutes Per Week", CategoryAccount, 110}},
		overlapRule{ruleInfo{CodeOverlap, "Overlapping Reservation", CategoryAccount, 115}},
		advanceWindowRule{ruleInfo{CodeAdvanceWindow, "Advance Booking Window", CategoryAccount, 120}},
		leadTimeRule{ruleInfo{CodeLeadTime, "Minimum Lead Time", CategoryAccount, 125}},
		cancelCooldownRule{ruleInfo{CodeCancelCooldown, "Cancellation Cooldown", CategoryAccount, 130}},
		maxPerDayRule{ruleInfo{CodeMaxPerDay, "Max Reservations Per Day", CategoryAccount, 135}},
		strikeLockoutRule{ruleInfo{CodeStrikeLockout, "Strike Lockout", CategoryAccount, 140}},
		primeEligibilityRule{ruleInfo{CodePrimeEligibility, "Prime Time Eligibility", CategoryAccount, 145}},
		rateLimitRule{ruleInfo{CodeRateLimit, "Booking Rate Limit", CategoryAccount, 150}, e},

		courtStatusRule{ruleInfo{CodeCourtStatus, "Court Status", CategoryCourt, 200}},
		primeMaxDurationRule{ruleInfo{CodePrimeMaxDuration, "Prime Time Max Duration", CategoryCourt, 205}},
		primeWeeklyCapRule{ruleInfo{CodePrimeWeeklyCap, "Prime Time Weekly Cap", CategoryCourt, 210}},
		operatingHoursRule{ruleInfo{CodeOperatingHours, "Operating Hours", CategoryCourt, 215}},
		slotAlignmentRule{ruleInfo{CodeSlotAlignment, "Slot Alignment", CategoryCourt, 220}},
		blackoutRule{ruleInfo{CodeBlackout, "Court Blackout", CategoryCourt, 225}},
		bufferRule{ruleInfo{CodeBuffer, "Booking Buffer", CategoryCourt, 230}},
		allowedActivitiesRule{ruleInfo{CodeAllowedActivities, "Allowed Activities", CategoryCourt, 235}},
		amenityConcurrencyRule{ruleInfo{CodeAmenityConcurrency, "Amenity Concurrency", CategoryCourt, 240}, e},
		consecutiveLimitRule{ruleInfo{CodeConsecutiveLimit, "Consecutive Court Time", CategoryCourt, 245}},
		releaseTimeRule{ruleInfo{CodeReleaseTime, "Release Time", CategoryCourt, 250}},

		householdMembersRule{ruleInfo{CodeHouseholdMembers, "Household Member Limit", CategoryHousehold, 300}},
		householdActiveRule{ruleInfo{CodeHouseholdActive, "Household Active Reservations", CategoryHousehold, 305}},
		householdPrimeRule{ruleInfo{CodeHouseholdPrime, "Household Prime Time Cap", CategoryHousehold, 310}},
	}
}
