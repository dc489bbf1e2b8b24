// internal/rules/schema.go
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Per-rule JSON schemas for facility config payloads. Unknown keys are
// tolerated for forward compatibility; known keys are type-checked so a
// facility admin typing "max_active": "four" degrades to defaults instead
// of silently evaluating garbage.
var ruleConfigSchemas = map[string]string{
	CodeMaxActive: `{
		"type": "object",
		"properties": {
			"max_active": {"type": "integer", "minimum": 0},
			"count_statuses": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	CodeMaxPerWeek: `{
		"type": "object",
		"properties": {
			"max_per_week": {"type": "integer", "minimum": 0},
			"window": {"enum": ["calendar", "rolling"]},
			"include_cancelled": {"type": "boolean"}
		}
	}`,
	CodeMaxMinutesPerWeek: `{
		"type": "object",
		"properties": {
			"max_minutes_per_week": {"type": "integer", "minimum": 0},
			"window": {"enum": ["calendar", "rolling"]},
			"include_cancelled": {"type": "boolean"}
		}
	}`,
	CodeOverlap: `{
		"type": "object",
		"properties": {
			"grace_minutes": {"type": "integer", "minimum": 0}
		}
	}`,
	CodeAdvanceWindow: `{
		"type": "object",
		"properties": {
			"max_advance_days": {"type": "integer", "minimum": 0}
		}
	}`,
	CodeLeadTime: `{
		"type": "object",
		"properties": {
			"min_lead_minutes": {"type": "integer", "minimum": 0}
		}
	}`,
	CodeCancelCooldown: `{
		"type": "object",
		"properties": {
			"cooldown_minutes": {"type": "integer", "minimum": 0},
			"only_if_within_minutes_of_start": {"type": "integer", "minimum": 0}
		}
	}`,
	CodeMaxPerDay: `{
		"type": "object",
		"properties": {
			"max_per_day": {"type": "integer", "minimum": 0}
		}
	}`,
	CodeStrikeLockout: `{
		"type": "object",
		"properties": {
			"strike_threshold": {"type": "integer", "minimum": 1},
			"strike_window_days": {"type": "integer", "minimum": 1, "maximum": 180},
			"lockout_days": {"type": "integer", "minimum": 1}
		}
	}`,
	CodePrimeEligibility: `{
		"type": "object",
		"properties": {
			"require_eligible_tier": {"type": "boolean"},
			"prime_per_week": {"type": "integer", "minimum": 0}
		}
	}`,
	CodeRateLimit: `{
		"type": "object",
		"properties": {
			"enforce": {"type": "boolean"}
		}
	}`,
	CodeCourtStatus: `{
		"type": "object",
		"properties": {
			"bookable_statuses": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	CodePrimeMaxDuration: `{
		"type": "object",
		"properties": {
			"max_minutes": {"type": "integer", "minimum": 0}
		}
	}`,
	CodePrimeWeeklyCap: `{
		"type": "object",
		"properties": {
			"prime_per_week": {"type": "integer", "minimum": 0}
		}
	}`,
	CodeOperatingHours: `{
		"type": "object",
		"properties": {
			"enforce": {"type": "boolean"}
		}
	}`,
	CodeSlotAlignment: `{
		"type": "object",
		"properties": {
			"slot_minutes": {"type": "integer", "minimum": 0},
			"min_duration_minutes": {"type": "integer", "minimum": 0},
			"max_duration_minutes": {"type": "integer", "minimum": 0}
		}
	}`,
	CodeBlackout: `{
		"type": "object",
		"properties": {
			"enforce": {"type": "boolean"}
		}
	}`,
	CodeBuffer: `{
		"type": "object",
		"properties": {
			"buffer_before_minutes": {"type": "integer", "minimum": 0},
			"buffer_after_minutes": {"type": "integer", "minimum": 0}
		}
	}`,
	CodeAllowedActivities: `{
		"type": "object",
		"properties": {
			"activities": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	CodeAmenityConcurrency: `{
		"type": "object",
		"properties": {
			"max_concurrent": {"type": "integer", "minimum": 0}
		}
	}`,
	CodeConsecutiveLimit: `{
		"type": "object",
		"properties": {
			"max_consecutive_minutes": {"type": "integer", "minimum": 0}
		}
	}`,
	CodeReleaseTime: `{
		"type": "object",
		"properties": {
			"days_ahead": {"type": "integer", "minimum": 0},
			"release_time": {"type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"}
		}
	}`,
	CodeHouseholdMembers: `{
		"type": "object",
		"properties": {
			"max_members": {"type": "integer", "minimum": 1}
		}
	}`,
	CodeHouseholdActive: `{
		"type": "object",
		"properties": {
			"max_active": {"type": "integer", "minimum": 0},
			"warn_at_remaining": {"type": "integer", "minimum": 0}
		}
	}`,
	CodeHouseholdPrime: `{
		"type": "object",
		"properties": {
			"prime_per_week": {"type": "integer", "minimum": 0}
		}
	}`,
}

var compiledSchemas = map[string]*jsonschema.Schema{}

func init() {
	for code, src := range ruleConfigSchemas {
		url := fmt.Sprintf("courtbook://rules/%s.json", code)
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(url, bytes.NewReader([]byte(src))); err != nil {
			panic(fmt.Sprintf("rule schema %s: %v", code, err))
		}
		compiledSchemas[code] = compiler.MustCompile(url)
	}
}

// ValidateRuleConfig checks a facility config payload against the rule's
// schema. Admin tooling calls this before persisting a config row; the
// pipeline calls it again defensively before overlaying defaults.
func ValidateRuleConfig(code string, raw json.RawMessage) error {
	return validateRuleConfig(code, raw)
}

func validateRuleConfig(code string, raw json.RawMessage) error {
	schema, ok := compiledSchemas[code]
	if !ok {
		return fmt.Errorf("unknown rule code %q", code)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}
