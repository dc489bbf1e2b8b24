package rules

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/openclub/courtbook/internal/models"
)

func TestBuildRuleContextNotFound(t *testing.T) {
	e := newTestEngine(t, newFixture())

	req := testRequest()
	req.UserID = 999
	if _, err := e.BuildRuleContext(context.Background(), req); !IsNotFound(err) {
		t.Fatalf("expected NotFoundError for unknown user, got %v", err)
	}

	req = testRequest()
	req.CourtID = 999
	if _, err := e.BuildRuleContext(context.Background(), req); !IsNotFound(err) {
		t.Fatalf("expected NotFoundError for unknown court, got %v", err)
	}

	req = testRequest()
	req.FacilityID = 999
	if _, err := e.BuildRuleContext(context.Background(), req); !IsNotFound(err) {
		t.Fatalf("expected NotFoundError for unknown facility, got %v", err)
	}
}

func TestBuildRuleContextTierResolution(t *testing.T) {
	f := newFixture()
	explicit := &models.MembershipTier{ID: 7, FacilityID: testFacilityID, Name: "Premier"}
	fallback := &models.MembershipTier{ID: 8, FacilityID: testFacilityID, Name: "Standard", IsDefault: true}
	f.defaultTiers[testFacilityID] = fallback

	e := newTestEngine(t, f)

	// Default tier applies when no explicit tier exists.
	rc := mustContext(t, e, testRequest())
	if rc.Tier == nil || rc.Tier.ID != 8 {
		t.Fatalf("expected default tier 8, got %+v", rc.Tier)
	}

	// An explicit non-expired tier wins over the default.
	f.userTiers[userFacility{testUserID, testFacilityID}] = explicit
	rc = mustContext(t, e, testRequest())
	if rc.Tier == nil || rc.Tier.ID != 7 {
		t.Fatalf("expected explicit tier 7, got %+v", rc.Tier)
	}
}

func TestBuildRuleContextMissingTierIsNil(t *testing.T) {
	e := newTestEngine(t, newFixture())
	rc := mustContext(t, e, testRequest())
	if rc.Tier != nil {
		t.Fatalf("expected nil tier, got %+v", rc.Tier)
	}
}

func TestBuildRuleContextPrimeTime(t *testing.T) {
	e := newTestEngine(t, newFixture())

	// 10:00-11:00 is outside the 17:00-21:00 prime window.
	rc := mustContext(t, e, testRequest())
	if rc.IsPrimeTime {
		t.Fatalf("morning booking must not be prime")
	}

	// 16:30-17:30 overlaps the prime window.
	req := testRequest()
	req.StartMinute = 16*60 + 30
	req.EndMinute = 17*60 + 30
	rc = mustContext(t, e, req)
	if !rc.IsPrimeTime {
		t.Fatalf("booking overlapping the prime window must be prime")
	}

	// 16:00-17:00 ends exactly at the window start: not prime.
	req.StartMinute = 16 * 60
	req.EndMinute = 17 * 60
	rc = mustContext(t, e, req)
	if rc.IsPrimeTime {
		t.Fatalf("booking ending at prime start must not be prime")
	}
}

func TestBuildRuleContextHouseholdSecondPhase(t *testing.T) {
	f := newFixture()
	hh := &models.HouseholdGroup{
		ID: 50, FacilityID: testFacilityID, MaxActive: 4,
		Members: []models.HouseholdMember{{UserID: testUserID, IsPrimary: true}, {UserID: testOtherUser}},
	}
	f.households[userFacility{testUserID, testFacilityID}] = hh
	f.householdBookings[50] = []models.Booking{
		{ID: 1, UserID: testOtherUser, FacilityID: testFacilityID, CourtID: testCourtID,
			Date: testDate, StartMinute: 8 * 60, EndMinute: 9 * 60, Status: models.BookingStatusConfirmed},
	}

	e := newTestEngine(t, f)
	rc := mustContext(t, e, testRequest())
	if rc.Household == nil || rc.Household.ID != 50 {
		t.Fatalf("expected household 50, got %+v", rc.Household)
	}
	if len(rc.HouseholdBookings) != 1 {
		t.Fatalf("expected 1 household booking, got %d", len(rc.HouseholdBookings))
	}
}

func TestBuildRuleContextDayConfigSelection(t *testing.T) {
	f := newFixture()
	// Give Wednesday a distinct close time.
	for i := range f.dayConfigs[testCourtID] {
		if f.dayConfigs[testCourtID][i].DayOfWeek == int(time.Wednesday) {
			f.dayConfigs[testCourtID][i].CloseMinute = 20 * 60
		}
	}
	e := newTestEngine(t, f)
	rc := mustContext(t, e, testRequest())
	if rc.DayConfig == nil || rc.DayConfig.CloseMinute != 20*60 {
		t.Fatalf("expected Wednesday config with 20:00 close, got %+v", rc.DayConfig)
	}
}

func TestEvaluationIdempotent(t *testing.T) {
	f := newFixture()
	f.userBookings = []models.Booking{
		{ID: 1, UserID: testUserID, FacilityID: testFacilityID, CourtID: testCourtID,
			Date: testDate, StartMinute: 14 * 60, EndMinute: 15 * 60, Status: models.BookingStatusConfirmed},
	}
	e := newTestEngine(t, f)

	first, err := e.Evaluate(context.Background(), mustContext(t, e, testRequest()))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	second, err := e.Evaluate(context.Background(), mustContext(t, e, testRequest()))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs must produce identical results:\n%+v\n%+v", first, second)
	}
}
