package rules

import (
	"testing"
	"time"

	"github.com/openclub/courtbook/internal/models"
)

func strikeAt(id int64, issued time.Time) models.AccountStrike {
	return models.AccountStrike{
		ID: id, UserID: testUserID, FacilityID: testFacilityID,
		Type: models.StrikeTypeLateCancel, IssuedAt: issued,
	}
}

func TestEvaluateLockoutThreshold(t *testing.T) {
	now := testNow
	policy := DefaultLockoutPolicy()

	strikes := []models.AccountStrike{
		strikeAt(1, now.AddDate(0, 0, -2)),
		strikeAt(2, now.AddDate(0, 0, -10)),
		strikeAt(3, now.AddDate(0, 0, -20)),
	}
	status := EvaluateLockout(strikes, now, policy)
	if !status.Locked {
		t.Fatalf("three strikes in 30 days must lock")
	}
	if status.ActiveCount != 3 {
		t.Fatalf("expected 3 active strikes, got %d", status.ActiveCount)
	}
	// Lockout runs 7 days from the most recent strike (2 days ago).
	want := now.AddDate(0, 0, 5)
	if !status.Until.Equal(want) {
		t.Fatalf("expected lockout until %v, got %v", want, status.Until)
	}

	// Two strikes are under the threshold.
	status = EvaluateLockout(strikes[:2], now, policy)
	if status.Locked {
		t.Fatalf("two strikes must not lock")
	}
}

func TestEvaluateLockoutExpires(t *testing.T) {
	now := testNow
	policy := DefaultLockoutPolicy()

	// Most recent strike 8 days ago: threshold is met but the 7-day
	// lockout has already run out.
	strikes := []models.AccountStrike{
		strikeAt(1, now.AddDate(0, 0, -8)),
		strikeAt(2, now.AddDate(0, 0, -12)),
		strikeAt(3, now.AddDate(0, 0, -15)),
	}
	status := EvaluateLockout(strikes, now, policy)
	if status.Locked {
		t.Fatalf("expired lockout must not block, until=%v", status.Until)
	}
	if status.ActiveCount != 3 {
		t.Fatalf("strikes remain active even after the lockout lapses, got %d", status.ActiveCount)
	}
}

func TestActiveStrikesFiltering(t *testing.T) {
	now := testNow

	revoked := strikeAt(1, now.AddDate(0, 0, -1))
	revoked.Revoked = true

	expired := strikeAt(2, now.AddDate(0, 0, -3))
	past := now.Add(-time.Hour)
	expired.ExpiresAt = &past

	outsideWindow := strikeAt(3, now.AddDate(0, 0, -40))
	counted := strikeAt(4, now.AddDate(0, 0, -5))

	active := ActiveStrikes([]models.AccountStrike{revoked, expired, outsideWindow, counted}, now, 30)
	if len(active) != 1 || active[0].ID != 4 {
		t.Fatalf("expected only strike 4 to count, got %+v", active)
	}
}

func TestStrikeLockoutRuleConfigOverride(t *testing.T) {
	f := newFixture()
	f.strikes = []models.AccountStrike{
		strikeAt(1, testNow.AddDate(0, 0, -2)),
		strikeAt(2, testNow.AddDate(0, 0, -5)),
	}
	e := newTestEngine(t, f)

	// Two strikes: under the default threshold of three.
	result := evaluate(t, e, testRequest())
	if _, found := findResult(result.Blockers, CodeStrikeLockout); found {
		t.Fatalf("two strikes must not lock under the default policy")
	}

	// A facility lowering the threshold to two locks the account.
	f.ruleConfigs[testFacilityID] = []models.FacilityRuleConfig{
		{FacilityID: testFacilityID, RuleCode: CodeStrikeLockout, Enabled: true,
			Config: []byte(`{"strike_threshold": 2}`)},
	}
	result = evaluate(t, e, testRequest())
	rr, found := findResult(result.Blockers, CodeStrikeLockout)
	if !found {
		t.Fatalf("facility threshold of two must lock")
	}
	if rr.Details["active_strikes"] != 2 {
		t.Fatalf("unexpected details: %+v", rr.Details)
	}
}
