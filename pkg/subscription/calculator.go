// Package subscription computes renewal dates for recurring subscriptions
// and raises reminders ahead of them.
package subscription

import (
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
)

// DateLayout is the format of last_renewed_date and next renewal dates.
const DateLayout = "2006-01-02"

// Date truncates t to a calendar date in UTC, keeping t's local year/month/day.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// NextRenewal returns the days from today until the next renewal and its date.
// lastRenewed is only consulted for yearly cycles.
func NextRenewal(cycle model.CycleType, renewalDay int, today time.Time, lastRenewed *time.Time) (int, time.Time) {
	today = Date(today)

	var next time.Time
	switch cycle {
	case model.CycleWeekly:
		ahead := renewalDay - isoWeekday(today)
		if ahead < 0 {
			ahead += 7
		}
		next = today.AddDate(0, 0, ahead)
	case model.CycleYearly:
		if lastRenewed != nil {
			last := Date(*lastRenewed)
			years := 1
			next = addYears(last, years)
			for !next.After(today) {
				years++
				next = addYears(last, years)
			}
		} else {
			next = addYears(today, 1)
		}
	default:
		this := clampedDate(today.Year(), today.Month(), renewalDay)
		if today.Before(this) {
			next = this
		} else {
			next = clampedDate(today.Year(), today.Month()+1, renewalDay)
		}
	}
	return daysBetween(today, next), next
}

// CycleStart is the boundary one cycle before next.
func CycleStart(cycle model.CycleType, renewalDay int, next time.Time) time.Time {
	next = Date(next)
	switch cycle {
	case model.CycleWeekly:
		return next.AddDate(0, 0, -7)
	case model.CycleYearly:
		return addYears(next, -1)
	default:
		return clampedDate(next.Year(), next.Month()-1, renewalDay)
	}
}

// AlreadyRenewed reports whether lastRenewed falls in the cycle ending at next.
func AlreadyRenewed(cycle model.CycleType, renewalDay int, next time.Time, lastRenewed *time.Time) bool {
	if lastRenewed == nil {
		return false
	}
	return !Date(*lastRenewed).Before(CycleStart(cycle, renewalDay, next))
}

// NeedAlert applies the reminder window.
func NeedAlert(days, alertDaysBefore int, alreadyRenewed bool) bool {
	return days >= 0 && days <= alertDaysBefore && !alreadyRenewed
}

func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// clampedDate builds year/month/day, clamping day to the month length.
// month may overflow; it is normalised first.
func clampedDate(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// addYears shifts t by n years, mapping Feb 29 to Feb 28 in non-leap years.
func addYears(t time.Time, n int) time.Time {
	return clampedDate(t.Year()+n, t.Month(), t.Day())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
