package rules

import (
	"encoding/json"
	"testing"

	"github.com/openclub/courtbook/internal/models"
)

func TestMalformedConfigDegradesToDefault(t *testing.T) {
	f := newFixture()
	// Wrong type for max_active: fails the rule schema, so the system
	// default of 4 applies and a single existing booking does not block.
	f.ruleConfigs[testFacilityID] = []models.FacilityRuleConfig{
		{FacilityID: testFacilityID, RuleCode: CodeMaxActive, Enabled: true,
			Config: json.RawMessage(`{"max_active": "four"}`)},
	}
	f.userBookings = []models.Booking{
		confirmedBooking(1, testDate.AddDate(0, 0, 1), 9*60, 10*60),
	}
	e := newTestEngine(t, f)

	result := evaluate(t, e, testRequest())
	if _, found := findResult(result.Blockers, CodeMaxActive); found {
		t.Fatalf("malformed config must fall back to the system default")
	}
	rr, _ := findResult(result.Results, CodeMaxActive)
	if !rr.Passed {
		t.Fatalf("rule must still evaluate on defaults: %+v", rr)
	}
}

func TestInvalidJSONDegradesToDefault(t *testing.T) {
	f := newFixture()
	f.ruleConfigs[testFacilityID] = []models.FacilityRuleConfig{
		{FacilityID: testFacilityID, RuleCode: CodeLeadTime, Enabled: true,
			Config: json.RawMessage(`{not json`)},
	}
	e := newTestEngine(t, f)

	// The default 30-minute lead applies; the request is two days out.
	result := evaluate(t, e, testRequest())
	if _, found := findResult(result.Blockers, CodeLeadTime); found {
		t.Fatalf("unparseable config must fall back to the system default")
	}
}

func TestConfigCourtScoping(t *testing.T) {
	f := newFixture()
	f.ruleConfigs[testFacilityID] = []models.FacilityRuleConfig{
		{FacilityID: testFacilityID, RuleCode: CodeMaxActive, Enabled: true,
			Config:   json.RawMessage(`{"max_active": 0}`),
			CourtIDs: []int64{999}},
	}
	e := newTestEngine(t, f)

	// The row targets a different court, so the default applies here.
	result := evaluate(t, e, testRequest())
	if _, found := findResult(result.Blockers, CodeMaxActive); found {
		t.Fatalf("config scoped to another court must not apply")
	}

	f.ruleConfigs[testFacilityID][0].CourtIDs = []int64{testCourtID}
	result = evaluate(t, e, testRequest())
	if _, found := findResult(result.Blockers, CodeMaxActive); !found {
		t.Fatalf("config scoped to this court must apply")
	}
}

func TestConfigTierScoping(t *testing.T) {
	f := newFixture()
	f.ruleConfigs[testFacilityID] = []models.FacilityRuleConfig{
		{FacilityID: testFacilityID, RuleCode: CodeMaxActive, Enabled: true,
			Config:  json.RawMessage(`{"max_active": 0}`),
			TierIDs: []int64{7}},
	}
	e := newTestEngine(t, f)

	// Tierless users never match tier-scoped rows.
	result := evaluate(t, e, testRequest())
	if _, found := findResult(result.Blockers, CodeMaxActive); found {
		t.Fatalf("tier-scoped config must not apply to a tierless user")
	}

	f.userTiers[userFacility{testUserID, testFacilityID}] = &models.MembershipTier{
		ID: 7, FacilityID: testFacilityID, Name: "Social",
	}
	result = evaluate(t, e, testRequest())
	if _, found := findResult(result.Blockers, CodeMaxActive); !found {
		t.Fatalf("config scoped to the user's tier must apply")
	}
}

func TestValidateRuleConfig(t *testing.T) {
	if err := ValidateRuleConfig(CodeMaxActive, json.RawMessage(`{"max_active": 3}`)); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := ValidateRuleConfig(CodeMaxActive, json.RawMessage(`{"max_active": -1}`)); err == nil {
		t.Fatalf("negative limit must fail validation")
	}
	if err := ValidateRuleConfig(CodeMaxPerWeek, json.RawMessage(`{"window": "fortnight"}`)); err == nil {
		t.Fatalf("unknown window value must fail validation")
	}
	if err := ValidateRuleConfig("XX-999", json.RawMessage(`{}`)); err == nil {
		t.Fatalf("unknown rule code must fail validation")
	}
	// The strike window is capped at the engine's fetch horizon; a
	// longer window would silently undercount strikes.
	if err := ValidateRuleConfig(CodeStrikeLockout, json.RawMessage(`{"strike_window_days": 180}`)); err != nil {
		t.Fatalf("window at the horizon rejected: %v", err)
	}
	if err := ValidateRuleConfig(CodeStrikeLockout, json.RawMessage(`{"strike_window_days": 365}`)); err == nil {
		t.Fatalf("window beyond the fetch horizon must fail validation")
	}
	// Unknown keys are tolerated for forward compatibility.
	if err := ValidateRuleConfig(CodeLeadTime, json.RawMessage(`{"min_lead_minutes": 15, "future_knob": true}`)); err != nil {
		t.Fatalf("unknown keys must be tolerated: %v", err)
	}
}
