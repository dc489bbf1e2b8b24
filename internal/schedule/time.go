// internal/schedule/time.go

// Package schedule holds the calendar arithmetic shared by the booking
// rules engine: minute-of-day conversion, half-open interval overlap,
// weekly windows, slot-grid alignment, and the weekly recurrence matcher
// used for court blackouts.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// MinuteOfDay returns the number of minutes since local midnight.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ParseClock converts "HH:MM" to minutes since midnight. "24:00" is
// accepted as end-of-day so close times can be exclusive upper bounds.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	if h < 0 || m < 0 || m > 59 || h*60+m > minutesPerDay {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// Overlaps reports whether the half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect. Back-to-back intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// Within reports whether [start,end) is fully contained in [openMin,closeMin).
func Within(start, end, openMin, closeMin int) bool {
	return start >= openMin && end <= closeMin
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DateIn rebuilds t's calendar date as midnight in loc.
func DateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DaysBetween returns the calendar days from a's date to b's date
// (b - a). The count uses date components only, so mixed locations and
// DST transitions never skew it. Negative when b precedes a.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / (24 * time.Hour))
}

// CalendarWeek returns the Sunday..Saturday window containing d as
// [start, end) midnights, where end is the following Sunday.
func CalendarWeek(d time.Time) (start, end time.Time) {
	day := DateOnly(d)
	start = day.AddDate(0, 0, -int(day.Weekday()))
	end = start.AddDate(0, 0, 7)
	return start, end
}

// RollingWeek returns the rolling 7-day window ending at the day after
// anchor: [anchor-6d midnight, anchor+1d midnight).
func RollingWeek(anchor time.Time) (start, end time.Time) {
	day := DateOnly(anchor)
	return day.AddDate(0, 0, -6), day.AddDate(0, 0, 1)
}

// InWindow reports whether the date of t falls in [start, end).
func InWindow(t, start, end time.Time) bool {
	day := DateOnly(t)
	return !day.Before(start) && day.Before(end)
}

// AlignedToGrid reports whether startMinute sits on the slot grid anchored
// at openMinute. A non-positive slot size disables grid enforcement.
func AlignedToGrid(startMinute, openMinute, slotMinutes int) bool {
	if slotMinutes <= 0 {
		return true
	}
	offset := startMinute - openMinute
	if offset < 0 {
		offset = -offset
	}
	return offset%slotMinutes == 0
}

// At combines a calendar date with a minute-of-day in the date's
// location. Wall-clock construction, so the minute holds across DST
// transition days.
func At(date time.Time, minute int) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, minute, 0, 0, date.Location())
}
