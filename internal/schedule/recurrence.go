// internal/schedule/recurrence.go
package schedule

import (
	"fmt"
	"strings"
	"time"
)

// WeeklyRule is the RRULE subset court blackouts actually use:
// FREQ=WEEKLY with an optional BYDAY list and an optional INTERVAL.
// Anything richer is rejected so bad data surfaces at write time instead
// of silently never matching.
type WeeklyRule struct {
	Interval int
	ByDay    []time.Weekday
}

var byDayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

// ParseWeeklyRule parses a weekly RRULE string such as
// "FREQ=WEEKLY;BYDAY=MO,WE,FR" or "FREQ=WEEKLY;INTERVAL=2".
func ParseWeeklyRule(rule string) (WeeklyRule, error) {
	parsed := WeeklyRule{Interval: 1}
	sawFreq := false

	for _, part := range strings.Split(strings.TrimSpace(rule), ";") {
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return WeeklyRule{}, fmt.Errorf("invalid rrule component %q", part)
		}
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "FREQ":
			if !strings.EqualFold(strings.TrimSpace(value), "WEEKLY") {
				return WeeklyRule{}, fmt.Errorf("unsupported rrule frequency %q", value)
			}
			sawFreq = true
		case "BYDAY":
			for _, code := range strings.Split(value, ",") {
				day, ok := byDayCodes[strings.ToUpper(strings.TrimSpace(code))]
				if !ok {
					return WeeklyRule{}, fmt.Errorf("unsupported rrule day %q", code)
				}
				parsed.ByDay = append(parsed.ByDay, day)
			}
		case "INTERVAL":
			var interval int
			if _, err := fmt.Sscanf(strings.TrimSpace(value), "%d", &interval); err != nil || interval < 1 {
				return WeeklyRule{}, fmt.Errorf("invalid rrule interval %q", value)
			}
			parsed.Interval = interval
		default:
			return WeeklyRule{}, fmt.Errorf("unsupported rrule component %q", key)
		}
	}

	if !sawFreq {
		return WeeklyRule{}, fmt.Errorf("rrule %q missing FREQ=WEEKLY", rule)
	}
	return parsed, nil
}

// Matches reports whether the rule fires on date, given the recurrence
// anchor (the blackout's first day). Without BYDAY the anchor's weekday
// recurs. INTERVAL counts weeks from the anchor's week.
func (r WeeklyRule) Matches(anchor, date time.Time) bool {
	day := DateOnly(date)
	anchorDay := DateOnly(anchor)
	if day.Before(anchorDay) {
		return false
	}

	days := r.ByDay
	if len(days) == 0 {
		days = []time.Weekday{anchorDay.Weekday()}
	}
	matched := false
	for _, wd := range days {
		if day.Weekday() == wd {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	if r.Interval > 1 {
		anchorWeek, _ := CalendarWeek(anchorDay)
		targetWeek, _ := CalendarWeek(day)
		weeks := DaysBetween(anchorWeek, targetWeek) / 7
		if weeks%r.Interval != 0 {
			return false
		}
	}
	return true
}
