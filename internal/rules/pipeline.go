// internal/rules/pipeline.go
package rules

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Evaluate runs every enabled rule against the context in fixed ascending
// order and partitions the results. There is no short-circuit: the caller
// always sees the complete list of violations and warnings. Only a
// TransientError from one of the live-query rules aborts the pipeline.
func (e *Engine) Evaluate(ctx context.Context, rc *RuleContext) (EvaluationResult, error) {
	result := EvaluationResult{IsPrimeTime: rc.IsPrimeTime}

	for _, ev := range e.evaluators {
		if rc.ruleDisabled(ev.Code()) {
			continue
		}
		rr, err := ev.Evaluate(ctx, rc)
		if err != nil {
			return EvaluationResult{}, fmt.Errorf("evaluate %s: %w", ev.Code(), err)
		}
		result.Results = append(result.Results, rr)
		switch {
		case rr.Blocking():
			result.Blockers = append(result.Blockers, rr)
		case rr.Advisory():
			result.Warnings = append(result.Warnings, rr)
		}
	}

	result.Allowed = len(result.Blockers) == 0

	logger := log.Ctx(ctx).With().
		Str("component", "rules_engine").
		Int64("user_id", rc.Request.UserID).
		Int64("court_id", rc.Request.CourtID).
		Int64("facility_id", rc.Request.FacilityID).
		Logger()
	if result.Allowed {
		logger.Debug().
			Int("rules_evaluated", len(result.Results)).
			Int("warnings", len(result.Warnings)).
			Bool("prime_time", result.IsPrimeTime).
			Msg("Booking request allowed")
	} else {
		logger.Info().
			Int("rules_evaluated", len(result.Results)).
			Int("blockers", len(result.Blockers)).
			Str("first_blocker", result.Blockers[0].RuleCode).
			Msg("Booking request blocked")
	}

	return result, nil
}

// EvaluateBooking assembles a context for the request and evaluates it.
func (e *Engine) EvaluateBooking(ctx context.Context, req BookingRequest) (*RuleContext, EvaluationResult, error) {
	rc, err := e.BuildRuleContext(ctx, req)
	if err != nil {
		return nil, EvaluationResult{}, err
	}
	result, err := e.Evaluate(ctx, rc)
	if err != nil {
		return nil, EvaluationResult{}, err
	}
	return rc, result, nil
}

// EvaluateWithOverride runs the normal pipeline to capture what would
// have blocked, then returns an allowed result carrying the overridden
// rule codes for the caller's audit trail. The slot-conflict check in the
// booking service is separate and never overridable.
func (e *Engine) EvaluateWithOverride(ctx context.Context, rc *RuleContext, ov Override) (OverrideResult, error) {
	base, err := e.Evaluate(ctx, rc)
	if err != nil {
		return OverrideResult{}, err
	}

	requested := make(map[string]struct{}, len(ov.RuleCodes))
	for _, code := range ov.RuleCodes {
		requested[code] = struct{}{}
	}

	var overridden []string
	for _, blocker := range base.Blockers {
		if len(requested) > 0 {
			if _, ok := requested[blocker.RuleCode]; !ok {
				continue
			}
		}
		overridden = append(overridden, blocker.RuleCode)
	}

	at := ov.At
	if at.IsZero() {
		at = rc.Now
	}

	result := OverrideResult{
		EvaluationResult: base,
		OverriddenCodes:  overridden,
		AdminID:          ov.AdminID,
		Reason:           ov.Reason,
		At:               at,
	}
	result.Allowed = true

	log.Ctx(ctx).Info().
		Str("component", "rules_engine").
		Int64("admin_id", ov.AdminID).
		Int64("user_id", rc.Request.UserID).
		Int64("facility_id", rc.Request.FacilityID).
		Strs("overridden_rules", overridden).
		Str("reason", ov.Reason).
		Msg("Booking evaluated with admin override")

	return result, nil
}
