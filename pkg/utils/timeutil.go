// Package utils provides small date/time helpers shared across folio.
package utils

import "time"

// DayLayout is the calendar-date form used as map keys and in API output.
const DayLayout = "2006-01-02"

// DayKey truncates an epoch-seconds timestamp to its UTC calendar date.
// Quote and FX sessions close at different times of day, so series are
// always reconciled on the calendar date, never the raw timestamp.
func DayKey(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(DayLayout)
}

// Midnight returns 00:00:00 UTC on the given day.
func Midnight(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns 23:59:59 UTC on the given day.
func EndOfDay(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 23, 59, 59, 0, time.UTC)
}
