package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openclub/courtbook/internal/db"
	"github.com/openclub/courtbook/internal/models"
	"github.com/openclub/courtbook/internal/ratelimit"
	"github.com/openclub/courtbook/internal/rules"
	"github.com/openclub/courtbook/internal/store"
	"github.com/openclub/courtbook/internal/testutil"
)

// Monday 10:00 UTC; requests target the following Wednesday.
var (
	svcNow  = time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	svcDate = time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fixture struct {
	database   *db.DB
	store      *store.Store
	service    *Service
	facilityID int64
	courtID    int64
	userID     int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := testutil.NewTestDB(t)
	ctx := context.Background()

	res, err := database.ExecContext(ctx,
		`INSERT INTO facilities (name, timezone, open_minute, close_minute,
		                         late_cancel_cutoff_minutes, late_cancel_penalty)
		 VALUES ('Riverside Racquet Club', 'UTC', 360, 1320, 120, 'strike')`)
	if err != nil {
		t.Fatalf("seed facility: %v", err)
	}
	facilityID, _ := res.LastInsertId()

	res, err = database.ExecContext(ctx,
		`INSERT INTO courts (facility_id, number, name, status) VALUES (?, 1, 'Court 1', 'active')`,
		facilityID)
	if err != nil {
		t.Fatalf("seed court: %v", err)
	}
	courtID, _ := res.LastInsertId()

	res, err = database.ExecContext(ctx,
		`INSERT INTO users (first_name, last_name, email) VALUES ('Dana', 'Reyes', 'dana@example.com')`)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	userID, _ := res.LastInsertId()

	st := store.New(database)
	engine, err := rules.New(st, rules.WithClock(fixedClock{now: svcNow}))
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	return &fixture{
		database:   database,
		store:      st,
		service:    New(database, st, engine, nil, nil),
		facilityID: facilityID,
		courtID:    courtID,
		userID:     userID,
	}
}

func (f *fixture) request(startMin, endMin int) rules.BookingRequest {
	return rules.BookingRequest{
		UserID:       f.userID,
		CourtID:      f.courtID,
		FacilityID:   f.facilityID,
		Date:         svcDate,
		StartMinute:  startMin,
		EndMinute:    endMin,
		ActivityType: "pickleball",
	}
}

func TestCreatePersistsBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.Create(ctx, f.request(10*60, 11*60))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !result.Evaluation.Allowed {
		t.Fatalf("expected allowed evaluation, blockers: %+v", result.Evaluation.Blockers)
	}
	if result.Booking.ID == 0 {
		t.Fatal("expected persisted booking id")
	}
	if result.Booking.Status != models.BookingStatusConfirmed {
		t.Fatalf("expected confirmed, got %q", result.Booking.Status)
	}

	stored, err := f.store.GetBooking(ctx, result.Booking.ID)
	if err != nil {
		t.Fatalf("load booking: %v", err)
	}
	if stored.StartMinute != 10*60 || stored.EndMinute != 11*60 {
		t.Fatalf("stored wrong window: %d-%d", stored.StartMinute, stored.EndMinute)
	}
}

func TestCreateRecordsAttemptAfterEvaluation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg := ratelimit.DefaultConfig()
	cfg.Clock = fixedClock{now: svcNow}
	limiter := ratelimit.New(cfg)
	t.Cleanup(limiter.Close)

	engine, err := rules.New(f.store,
		rules.WithClock(fixedClock{now: svcNow}),
		rules.WithAttemptLimiter(limiter))
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	svc := New(f.database, f.store, engine, limiter, nil)

	// A first-ever attempt has nothing on record yet; the attempt-limit
	// rule must not count the attempt it is part of.
	result, err := svc.Create(ctx, f.request(10*60, 11*60))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !result.Evaluation.Allowed {
		t.Fatalf("first attempt must pass, blockers: %+v", result.Evaluation.Blockers)
	}

	// The attempt was recorded after evaluation, so with the clock
	// frozen inside the cooldown the next attempt is blocked.
	result, err = svc.Create(ctx, f.request(12*60, 13*60))
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected blocked second attempt, got %v", err)
	}
	if _, found := findBlocker(result.Evaluation.Blockers, rules.CodeRateLimit); !found {
		t.Fatalf("expected rate limit blocker, got %+v", result.Evaluation.Blockers)
	}
}

func findBlocker(results []rules.RuleResult, code string) (rules.RuleResult, bool) {
	for _, r := range results {
		if r.RuleCode == code {
			return r, true
		}
	}
	return rules.RuleResult{}, false
}

func TestCreateBlockedReturnsEvaluation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Create(ctx, f.request(10*60, 11*60)); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Same member, overlapping window.
	result, err := f.service.Create(ctx, f.request(10*60+30, 11*60+30))
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if result.Evaluation.Allowed {
		t.Fatal("expected denied evaluation")
	}
	if len(result.Evaluation.Blockers) == 0 {
		t.Fatal("expected at least one blocker")
	}
	if result.Booking.ID != 0 {
		t.Fatal("blocked create must not persist a booking")
	}
}

func TestCreateSlotTakenByOtherUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.database.ExecContext(ctx,
		`INSERT INTO users (first_name, last_name, email) VALUES ('Sam', 'Okafor', 'sam@example.com')`)
	if err != nil {
		t.Fatalf("seed second user: %v", err)
	}
	otherID, _ := res.LastInsertId()

	if _, err := f.service.Create(ctx, f.request(10*60, 11*60)); err != nil {
		t.Fatalf("first create: %v", err)
	}

	req := f.request(10*60, 11*60)
	req.UserID = otherID
	_, err = f.service.Create(ctx, req)
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestCreateWithOverridePersistsAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Create(ctx, f.request(10*60, 11*60)); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Overlaps the member's own booking; the plain path would block.
	result, err := f.service.CreateWithOverride(ctx, f.request(10*60+30, 11*60+30), rules.Override{
		AdminID: 900,
		Reason:  "league make-up match",
		At:      svcNow,
	})
	if err != nil {
		t.Fatalf("override create: %v", err)
	}
	if result.Booking.ID == 0 {
		t.Fatal("expected persisted booking")
	}
	if len(result.Override.OverriddenCodes) == 0 {
		t.Fatal("expected overridden codes recorded")
	}

	var count int
	err = f.database.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rule_override_audits WHERE booking_id = ?`, result.Booking.ID).Scan(&count)
	if err != nil {
		t.Fatalf("count audits: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one audit row, got %d", count)
	}
}

func TestCancelOnTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, f.request(10*60, 11*60))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := f.service.Cancel(ctx, rules.CancellationRequest{
		BookingID:  created.Booking.ID,
		UserID:     f.userID,
		FacilityID: f.facilityID,
		Reason:     "schedule change",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !result.Result.Allowed || result.Result.IsLateCancel {
		t.Fatalf("expected on-time cancellation, got %+v", result.Result)
	}
	if result.StrikeID != 0 {
		t.Fatal("on-time cancellation must not issue a strike")
	}

	booking, err := f.store.GetBooking(ctx, created.Booking.ID)
	if err != nil {
		t.Fatalf("load booking: %v", err)
	}
	if booking.Status != models.BookingStatusCancelled {
		t.Fatalf("expected cancelled, got %q", booking.Status)
	}
}

func TestCancelLateIssuesStrikeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Booking today at 11:00 with the fixed clock at 10:00; the 120
	// minute cutoff makes this a late cancellation.
	req := f.request(11*60, 12*60)
	req.Date = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	created, err := f.service.Create(ctx, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := f.service.Cancel(ctx, rules.CancellationRequest{
		BookingID:  created.Booking.ID,
		UserID:     f.userID,
		FacilityID: f.facilityID,
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !result.Result.IsLateCancel || !result.Result.StrikeWillBeIssued {
		t.Fatalf("expected late cancel with strike, got %+v", result.Result)
	}
	if result.StrikeID == 0 {
		t.Fatal("expected strike id")
	}

	strikes, err := f.store.ListStrikes(ctx, f.userID, f.facilityID, svcNow.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("list strikes: %v", err)
	}
	if len(strikes) != 1 {
		t.Fatalf("expected exactly one strike, got %d", len(strikes))
	}
	if strikes[0].Type != models.StrikeTypeLateCancel {
		t.Fatalf("expected late_cancel strike, got %q", strikes[0].Type)
	}

	var cancellations int
	err = f.database.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM booking_cancellations WHERE booking_id = ?`, created.Booking.ID).Scan(&cancellations)
	if err != nil {
		t.Fatalf("count cancellations: %v", err)
	}
	if cancellations != 1 {
		t.Fatalf("expected one cancellation row, got %d", cancellations)
	}
}

func TestCancelAlreadyCancelledNotAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, f.request(10*60, 11*60))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cancelReq := rules.CancellationRequest{
		BookingID:  created.Booking.ID,
		UserID:     f.userID,
		FacilityID: f.facilityID,
	}
	if _, err := f.service.Cancel(ctx, cancelReq); err != nil {
		t.Fatalf("first cancel: %v", err)
	}

	result, err := f.service.Cancel(ctx, cancelReq)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if result.Result.Allowed {
		t.Fatal("second cancel must not be allowed")
	}
}
