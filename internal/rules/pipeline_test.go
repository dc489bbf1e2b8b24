package rules

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/openclub/courtbook/internal/models"
)

func TestEvaluateAllRulesPass(t *testing.T) {
	e := newTestEngine(t, newFixture())
	result, err := e.Evaluate(context.Background(), mustContext(t, e, testRequest()))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("expected allowed, blockers: %+v", result.Blockers)
	}
	if len(result.Blockers) != 0 {
		t.Fatalf("expected no blockers, got %+v", result.Blockers)
	}
	if len(result.Results) != len(e.Evaluators()) {
		t.Fatalf("every enabled rule must run: got %d results for %d evaluators",
			len(result.Results), len(e.Evaluators()))
	}
}

func TestEvaluateNoShortCircuit(t *testing.T) {
	f := newFixture()
	// Force two independent blockers: a full account and a too-short
	// lead time.
	f.ruleConfigs[testFacilityID] = []models.FacilityRuleConfig{
		{FacilityID: testFacilityID, RuleCode: CodeMaxActive, Enabled: true,
			Config: json.RawMessage(`{"max_active": 0}`)},
		{FacilityID: testFacilityID, RuleCode: CodeLeadTime, Enabled: true,
			Config: json.RawMessage(`{"min_lead_minutes": 10000}`)},
	}
	e := newTestEngine(t, f)

	result, err := e.Evaluate(context.Background(), mustContext(t, e, testRequest()))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatalf("expected denial")
	}
	if len(result.Blockers) != 2 {
		t.Fatalf("expected both blockers surfaced, got %+v", result.Blockers)
	}
	if len(result.Results) != len(e.Evaluators()) {
		t.Fatalf("failures must not short-circuit the pipeline")
	}
}

func TestEvaluateDeterministicOrder(t *testing.T) {
	e := newTestEngine(t, newFixture())
	result, err := e.Evaluate(context.Background(), mustContext(t, e, testRequest()))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	evs := e.Evaluators()
	for i, r := range result.Results {
		if r.RuleCode != evs[i].Code() {
			t.Fatalf("result %d is %s, expected %s", i, r.RuleCode, evs[i].Code())
		}
	}
}

func TestEvaluateExplicitDisableSkipsRule(t *testing.T) {
	f := newFixture()
	f.ruleConfigs[testFacilityID] = []models.FacilityRuleConfig{
		{FacilityID: testFacilityID, RuleCode: CodeLeadTime, Enabled: false},
	}
	e := newTestEngine(t, f)

	result, err := e.Evaluate(context.Background(), mustContext(t, e, testRequest()))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if _, found := findResult(result.Results, CodeLeadTime); found {
		t.Fatalf("explicitly disabled rule must not run")
	}
	if len(result.Results) != len(e.Evaluators())-1 {
		t.Fatalf("expected %d results, got %d", len(e.Evaluators())-1, len(result.Results))
	}
}

func TestEvaluateAbsentConfigStillRuns(t *testing.T) {
	// No config rows at all: every rule still evaluates on system
	// defaults.
	e := newTestEngine(t, newFixture())
	result, err := e.Evaluate(context.Background(), mustContext(t, e, testRequest()))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if _, found := findResult(result.Results, CodeMaxActive); !found {
		t.Fatalf("rule without a config row must still run")
	}
}

func TestEvaluateWithOverride(t *testing.T) {
	f := newFixture()
	// ACC-006 blocks: request starts two days out but lead requirement
	// is absurd.
	f.ruleConfigs[testFacilityID] = []models.FacilityRuleConfig{
		{FacilityID: testFacilityID, RuleCode: CodeLeadTime, Enabled: true,
			Config: json.RawMessage(`{"min_lead_minutes": 10000}`)},
	}
	e := newTestEngine(t, f)
	rc := mustContext(t, e, testRequest())

	base, err := e.Evaluate(context.Background(), rc)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if base.Allowed {
		t.Fatalf("expected base evaluation to block")
	}

	result, err := e.EvaluateWithOverride(context.Background(), rc, Override{
		AdminID: 42,
		Reason:  "front desk exception",
	})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("override path must allow")
	}
	// The blocker list is retained for the audit trail.
	if _, found := findResult(result.Blockers, CodeLeadTime); !found {
		t.Fatalf("audit trail must retain the overridden blocker")
	}
	if len(result.OverriddenCodes) != 1 || result.OverriddenCodes[0] != CodeLeadTime {
		t.Fatalf("unexpected overridden codes: %v", result.OverriddenCodes)
	}
}

func TestEvaluateWithOverrideScopedCodes(t *testing.T) {
	f := newFixture()
	f.ruleConfigs[testFacilityID] = []models.FacilityRuleConfig{
		{FacilityID: testFacilityID, RuleCode: CodeLeadTime, Enabled: true,
			Config: json.RawMessage(`{"min_lead_minutes": 10000}`)},
		{FacilityID: testFacilityID, RuleCode: CodeMaxActive, Enabled: true,
			Config: json.RawMessage(`{"max_active": 0}`)},
	}
	e := newTestEngine(t, f)
	rc := mustContext(t, e, testRequest())

	result, err := e.EvaluateWithOverride(context.Background(), rc, Override{
		AdminID:   42,
		Reason:    "lead time waived only",
		RuleCodes: []string{CodeLeadTime},
	})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("override path always allows")
	}
	if len(result.OverriddenCodes) != 1 || result.OverriddenCodes[0] != CodeLeadTime {
		t.Fatalf("only requested codes may be recorded as overridden: %v", result.OverriddenCodes)
	}
}
