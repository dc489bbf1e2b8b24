// internal/rules/config.go
package rules

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openclub/courtbook/internal/models"
)

// ConfigError marks a malformed per-facility rule config. The pipeline
// degrades to the rule's system default instead of aborting: one
// facility's bad config must not break booking for everyone.
type ConfigError struct {
	RuleCode string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rule %s config: %v", e.RuleCode, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// configRow returns the facility's in-scope config row for a rule code,
// or nil when the rule runs with its system default. Rows scoped to other
// courts or tiers are treated as absent.
func (rc *RuleContext) configRow(code string) *models.FacilityRuleConfig {
	for i := range rc.RuleConfigs {
		row := &rc.RuleConfigs[i]
		if row.RuleCode != code {
			continue
		}
		if !row.AppliesToCourt(rc.Request.CourtID) {
			continue
		}
		if !row.AppliesToTier(rc.tierID()) {
			continue
		}
		return row
	}
	return nil
}

// ruleDisabled reports whether the facility explicitly disabled the rule.
// Absence of a config row means the rule is active with system defaults.
func (rc *RuleContext) ruleDisabled(code string) bool {
	row := rc.configRow(code)
	return row != nil && !row.Enabled
}

// decodeConfig overlays the facility's config JSON onto dst, which the
// caller pre-populates with system defaults. Facility JSON that fails its
// rule schema (or fails to unmarshal) leaves dst untouched; the failure
// is logged once and evaluation continues on defaults.
func decodeConfig(rc *RuleContext, code string, dst any) {
	row := rc.configRow(code)
	if row == nil || !row.Enabled || len(row.Config) == 0 {
		return
	}
	if err := validateRuleConfig(code, row.Config); err != nil {
		logConfigError(rc, &ConfigError{RuleCode: code, Err: err})
		return
	}
	if err := json.Unmarshal(row.Config, dst); err != nil {
		logConfigError(rc, &ConfigError{RuleCode: code, Err: err})
	}
}

func logConfigError(rc *RuleContext, cerr *ConfigError) {
	log.Warn().
		Str("component", "rules_engine").
		Int64("facility_id", rc.Request.FacilityID).
		Str("rule_code", cerr.RuleCode).
		Err(cerr.Err).
		Msg("Malformed facility rule config, using system default")
}

// intOr dereferences p or falls back.
func intOr(p *int, fallback int) int {
	if p != nil {
		return *p
	}
	return fallback
}

// resolveLimit applies the config precedence chain for tier-bound numeric
// limits: facility override > tier value > system default.
func resolveLimit(facility, tier *int, systemDefault int) int {
	if facility != nil {
		return *facility
	}
	if tier != nil {
		return *tier
	}
	return systemDefault
}
