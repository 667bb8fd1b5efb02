// Package calendar labels trading days for display: weekday names and week numbers.
package calendar

import "time"

// Week numbering schemes.
const (
	WeekISO       = "iso"
	WeekFinancial = "financial"
)

// Weekday returns the English day name, e.g. "Monday".
func Weekday(t time.Time) string {
	return t.Weekday().String()
}

// ISOWeek returns the ISO 8601 week number (Monday start, 1..53).
func ISOWeek(t time.Time) int {
	_, w := t.ISOWeek()
	return w
}

// FinancialWeek numbers weeks from the first Monday of the calendar year.
// Days before that Monday count as week 1 and the result is capped at 52, so
// every year has exactly 52 weeks.
func FinancialWeek(t time.Time) int {
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	offset := (int(time.Monday) - int(jan1.Weekday()) + 7) % 7
	firstMonday := jan1.AddDate(0, 0, offset)

	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if day.Before(firstMonday) {
		return 1
	}
	week := int(day.Sub(firstMonday).Hours()/24)/7 + 1
	if week > 52 {
		week = 52
	}
	return week
}

// Week returns the week number under the given scheme; unknown schemes use ISO.
func Week(t time.Time, scheme string) int {
	if scheme == WeekFinancial {
		return FinancialWeek(t)
	}
	return ISOWeek(t)
}
