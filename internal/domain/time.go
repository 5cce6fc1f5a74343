package domain

import (
	"time"
)

// DateFormat is the day-precision format used for document keys and API
// parameters.
const DateFormat = "2006-01-02"

// DayOf truncates a timestamp to its UTC calendar day. All key comparisons
// in the engine happen at day precision.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two timestamps fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return DayOf(a).Equal(DayOf(b))
}
