package rules

import (
	"context"
	"time"

	"github.com/openclub/courtbook/internal/models"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type userFacility struct{ userID, facilityID int64 }

// fakeReads is the in-memory Reads implementation the engine tests run
// against.
type fakeReads struct {
	users        map[int64]models.User
	facilities   map[int64]models.Facility
	courts       map[int64]models.Court
	bookingsByID map[int64]models.Booking

	userTiers    map[userFacility]*models.MembershipTier
	defaultTiers map[int64]*models.MembershipTier

	dayConfigs  map[int64][]models.CourtOperatingConfig
	activities  map[int64][]string
	ruleConfigs map[int64][]models.FacilityRuleConfig
	households  map[userFacility]*models.HouseholdGroup

	userBookings      []models.Booking
	courtBookings     []models.Booking
	householdBookings map[int64][]models.Booking

	strikes       []models.AccountStrike
	cancellations []models.BookingCancellation
	blackouts     []models.CourtBlackout

	amenityCount int
	amenityErr   error
}

func (f *fakeReads) GetUser(_ context.Context, id int64) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return models.User{}, &NotFoundError{Kind: "user", ID: id}
	}
	return u, nil
}

func (f *fakeReads) GetFacility(_ context.Context, id int64) (models.Facility, error) {
	fa, ok := f.facilities[id]
	if !ok {
		return models.Facility{}, &NotFoundError{Kind: "facility", ID: id}
	}
	return fa, nil
}

func (f *fakeReads) GetCourt(_ context.Context, id int64) (models.Court, error) {
	c, ok := f.courts[id]
	if !ok {
		return models.Court{}, &NotFoundError{Kind: "court", ID: id}
	}
	return c, nil
}

func (f *fakeReads) GetBooking(_ context.Context, id int64) (models.Booking, error) {
	b, ok := f.bookingsByID[id]
	if !ok {
		return models.Booking{}, &NotFoundError{Kind: "booking", ID: id}
	}
	return b, nil
}

func (f *fakeReads) GetUserTier(_ context.Context, userID, facilityID int64) (*models.MembershipTier, error) {
	return f.userTiers[userFacility{userID, facilityID}], nil
}

func (f *fakeReads) GetDefaultTier(_ context.Context, facilityID int64) (*models.MembershipTier, error) {
	return f.defaultTiers[facilityID], nil
}

func (f *fakeReads) ListCourtDayConfigs(_ context.Context, courtID int64) ([]models.CourtOperatingConfig, error) {
	return f.dayConfigs[courtID], nil
}

func (f *fakeReads) ListCourtActivities(_ context.Context, courtID int64) ([]string, error) {
	return f.activities[courtID], nil
}

func (f *fakeReads) ListRuleConfigs(_ context.Context, facilityID int64) ([]models.FacilityRuleConfig, error) {
	return f.ruleConfigs[facilityID], nil
}

func (f *fakeReads) GetHouseholdForUser(_ context.Context, userID, facilityID int64) (*models.HouseholdGroup, error) {
	return f.households[userFacility{userID, facilityID}], nil
}

func (f *fakeReads) ListUserBookings(_ context.Context, userID, facilityID int64, from time.Time) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range f.userBookings {
		if b.UserID == userID && b.FacilityID == facilityID && !b.Date.Before(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeReads) ListCourtBookings(_ context.Context, courtID int64, date time.Time) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range f.courtBookings {
		if b.CourtID == courtID && b.SameDay(date) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeReads) ListHouseholdBookings(_ context.Context, householdID int64, from time.Time) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range f.householdBookings[householdID] {
		if !b.Date.Before(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeReads) ListStrikes(_ context.Context, userID, facilityID int64, since time.Time) ([]models.AccountStrike, error) {
	var out []models.AccountStrike
	for _, s := range f.strikes {
		if s.UserID == userID && s.FacilityID == facilityID && !s.IssuedAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeReads) ListRecentCancellations(_ context.Context, userID, facilityID int64, since time.Time) ([]models.BookingCancellation, error) {
	var out []models.BookingCancellation
	for _, c := range f.cancellations {
		if c.UserID == userID && c.FacilityID == facilityID && !c.CancelledAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeReads) ListBlackouts(_ context.Context, facilityID int64, _ time.Time) ([]models.CourtBlackout, error) {
	var out []models.CourtBlackout
	for _, b := range f.blackouts {
		if b.FacilityID == facilityID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeReads) CountAmenityBookings(_ context.Context, _ int64, _ time.Time, _, _ int) (int, error) {
	if f.amenityErr != nil {
		return 0, f.amenityErr
	}
	return f.amenityCount, nil
}

const (
	testUserID     = int64(1)
	testOtherUser  = int64(2)
	testFacilityID = int64(10)
	testCourtID    = int64(100)
)

// testNow is a Monday morning; testDate the Wednesday two days later.
var (
	testNow  = time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	testDate = time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
)

func intp(v int) *int { return &v }

// newFixture builds a fake with one user, one facility (06:00-22:00,
// 120-minute late cancel cutoff, strike penalty), and one court with
// identical day configs for every weekday (prime 17:00-21:00, 30-minute
// grid, 30-120 minute durations).
func newFixture() *fakeReads {
	f := &fakeReads{
		users: map[int64]models.User{
			testUserID:    {ID: testUserID, FirstName: "Dana", LastName: "Reyes", Email: "dana@example.com"},
			testOtherUser: {ID: testOtherUser, FirstName: "Sam", LastName: "Reyes", Email: "sam@example.com"},
		},
		facilities: map[int64]models.Facility{
			testFacilityID: {
				ID:                      testFacilityID,
				Name:                    "Riverside Racquet Club",
				Timezone:                "UTC",
				OpenMinute:              6 * 60,
				CloseMinute:             22 * 60,
				LateCancelCutoffMinutes: 120,
				LateCancelPenalty:       "strike",
			},
		},
		courts: map[int64]models.Court{
			testCourtID: {ID: testCourtID, FacilityID: testFacilityID, Number: 1, Status: models.CourtStatusActive},
		},
		bookingsByID:      map[int64]models.Booking{},
		userTiers:         map[userFacility]*models.MembershipTier{},
		defaultTiers:      map[int64]*models.MembershipTier{},
		dayConfigs:        map[int64][]models.CourtOperatingConfig{},
		activities:        map[int64][]string{},
		ruleConfigs:       map[int64][]models.FacilityRuleConfig{},
		households:        map[userFacility]*models.HouseholdGroup{},
		householdBookings: map[int64][]models.Booking{},
	}

	var configs []models.CourtOperatingConfig
	for dow := 0; dow < 7; dow++ {
		configs = append(configs, models.CourtOperatingConfig{
			CourtID:            testCourtID,
			DayOfWeek:          dow,
			OpenMinute:         6 * 60,
			CloseMinute:        22 * 60,
			PrimeStartMinute:   intp(17 * 60),
			PrimeEndMinute:     intp(21 * 60),
			SlotMinutes:        30,
			MinDurationMinutes: 30,
			MaxDurationMinutes: 120,
		})
	}
	f.dayConfigs[testCourtID] = configs
	return f
}

func newTestEngine(t interface{ Fatalf(string, ...any) }, f *fakeReads, opts ...Option) *Engine {
	opts = append([]Option{WithClock(fixedClock{testNow})}, opts...)
	e, err := New(f, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

// testRequest is a plain off-prime Wednesday 10:00-11:00 booking.
func testRequest() BookingRequest {
	return BookingRequest{
		UserID:      testUserID,
		CourtID:     testCourtID,
		FacilityID:  testFacilityID,
		Date:        testDate,
		StartMinute: 10 * 60,
		EndMinute:   11 * 60,
	}
}

func mustContext(t interface{ Fatalf(string, ...any) }, e *Engine, req BookingRequest) *RuleContext {
	rc, err := e.BuildRuleContext(context.Background(), req)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	return rc
}

func findResult(results []RuleResult, code string) (RuleResult, bool) {
	for _, r := range results {
		if r.RuleCode == code {
			return r, true
		}
	}
	return RuleResult{}, false
}
