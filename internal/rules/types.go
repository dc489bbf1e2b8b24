// internal/rules/types.go

// Package rules implements the booking rules engine: a deterministic,
// ordered pipeline of per-facility configurable policy evaluators that
// decide whether a proposed reservation or cancellation is permitted.
// The engine only reads state; persisting bookings, strikes, and override
// audit records is the calling booking service's job.
package rules

import (
	"errors"
	"fmt"
	"time"
)

// Severity classifies a failed rule result. Errors block the booking,
// warnings are advisory.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rule categories group the catalog for admin tooling.
type Category string

const (
	CategoryAccount   Category = "account"
	CategoryCourt     Category = "court"
	CategoryHousehold Category = "household"
)

// BookingRequest is the immutable candidate reservation under evaluation.
// Times are minutes since midnight in the facility's timezone; Date is the
// booking day at midnight in that timezone.
type BookingRequest struct {
	UserID       int64
	CourtID      int64
	FacilityID   int64
	Date         time.Time
	StartMinute  int
	EndMinute    int
	BookingType  string
	ActivityType string
}

// DurationMinutes returns the requested length in minutes.
func (r BookingRequest) DurationMinutes() int {
	return r.EndMinute - r.StartMinute
}

// RuleResult is one evaluator's verdict.
type RuleResult struct {
	RuleCode string         `json:"rule_code"`
	RuleName string         `json:"rule_name"`
	Passed   bool           `json:"passed"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// Blocking reports whether the result prevents the booking.
func (r RuleResult) Blocking() bool {
	return !r.Passed && r.Severity == SeverityError
}

// Advisory reports whether the result should surface as a warning: a
// failed warning-severity rule, or a passing rule that carries a message
// (for example "household near its reservation cap").
func (r RuleResult) Advisory() bool {
	if r.Passed {
		return r.Severity == SeverityWarning && r.Message != ""
	}
	return r.Severity == SeverityWarning
}

// EvaluationResult is the pipeline's aggregate outcome.
// Allowed is true exactly when Blockers is empty.
type EvaluationResult struct {
	Allowed     bool         `json:"allowed"`
	Results     []RuleResult `json:"results"`
	Blockers    []RuleResult `json:"blockers"`
	Warnings    []RuleResult `json:"warnings"`
	IsPrimeTime bool         `json:"is_prime_time"`
}

// Override carries the admin authorization for a privileged re-evaluation.
// When RuleCodes is empty every blocker is overridden.
type Override struct {
	AdminID   int64
	Reason    string
	At        time.Time
	RuleCodes []string
}

// OverrideResult is the override path's outcome: Allowed is always true,
// Blockers retains what would have blocked for the audit trail, and
// OverriddenCodes lists exactly the rule codes the caller must persist.
type OverrideResult struct {
	EvaluationResult
	OverriddenCodes []string
	AdminID         int64
	Reason          string
	At              time.Time
}

// CancellationRequest asks whether a booking may be cancelled now.
type CancellationRequest struct {
	BookingID  int64
	UserID     int64
	FacilityID int64
	Reason     string
}

// CancellationResult reports lateness and whether the caller should issue
// a strike. MinutesBeforeStart is negative once the booking has started.
type CancellationResult struct {
	Allowed            bool   `json:"allowed"`
	IsLateCancel       bool   `json:"is_late_cancel"`
	StrikeWillBeIssued bool   `json:"strike_will_be_issued"`
	MinutesBeforeStart int    `json:"minutes_before_start"`
	Message            string `json:"message,omitempty"`
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NotFoundError is returned from context building when the user, court,
// or facility cannot be resolved. It is a hard failure, never a rule
// result.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// TransientError wraps a failed data read. It is propagated to the
// caller, never retried inside the engine.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// transient wraps err as a TransientError unless it is already a hard
// engine error.
func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}
