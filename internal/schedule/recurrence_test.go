package schedule

import (
	"testing"
	"time"
)

func TestParseWeeklyRuleByDay(t *testing.T) {
	rule, err := ParseWeeklyRule("FREQ=WEEKLY;BYDAY=MO,WE,FR")
	if err != nil {
		t.Fatalf("parse rrule: %v", err)
	}
	if len(rule.ByDay) != 3 || rule.Interval != 1 {
		t.Fatalf("unexpected rule: %+v", rule)
	}
}

func TestParseWeeklyRuleRejectsUnsupported(t *testing.T) {
	if _, err := ParseWeeklyRule("FREQ=DAILY"); err == nil {
		t.Fatalf("expected rejection of non-weekly frequency")
	}
	if _, err := ParseWeeklyRule("FREQ=WEEKLY;BYMONTH=6"); err == nil {
		t.Fatalf("expected rejection of unsupported component")
	}
	if _, err := ParseWeeklyRule("BYDAY=MO"); err == nil {
		t.Fatalf("expected rejection when FREQ missing")
	}
}

func TestWeeklyRuleMatchesByDay(t *testing.T) {
	rule, err := ParseWeeklyRule("FREQ=WEEKLY;BYDAY=MO,WE")
	if err != nil {
		t.Fatalf("parse rrule: %v", err)
	}
	anchor := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC) // Monday

	if !rule.Matches(anchor, time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)) { // Wednesday
		t.Fatalf("expected Wednesday match")
	}
	if rule.Matches(anchor, time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)) { // Tuesday
		t.Fatalf("Tuesday must not match")
	}
	if rule.Matches(anchor, time.Date(2024, 4, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("dates before the anchor must not match")
	}
}

func TestWeeklyRuleDefaultsToAnchorWeekday(t *testing.T) {
	rule, err := ParseWeeklyRule("FREQ=WEEKLY")
	if err != nil {
		t.Fatalf("parse rrule: %v", err)
	}
	anchor := time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC) // Tuesday

	if !rule.Matches(anchor, time.Date(2024, 5, 21, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected Tuesday two weeks out to match")
	}
	if rule.Matches(anchor, time.Date(2024, 5, 22, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Wednesday must not match an anchor-weekday rule")
	}
}

func TestWeeklyRuleInterval(t *testing.T) {
	rule, err := ParseWeeklyRule("FREQ=WEEKLY;INTERVAL=2")
	if err != nil {
		t.Fatalf("parse rrule: %v", err)
	}
	anchor := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC) // Monday

	if !rule.Matches(anchor, anchor.AddDate(0, 0, 14)) {
		t.Fatalf("expected match two weeks from anchor")
	}
	if rule.Matches(anchor, anchor.AddDate(0, 0, 7)) {
		t.Fatalf("off-interval week must not match")
	}
}
