package timewindow

import "time"

// Keys holds the three window keys derived from a single instant.
type Keys struct {
	Hour  int64 // YYYYMMDDHH
	Day   int64 // YYYYMMDD
	Month int64 // YYYYMM
}

// HourKey encodes the calendar hour of t as a decimal YYYYMMDDHH integer.
// The instant is normalized to UTC before encoding so that keys computed in
// different processes agree regardless of local timezone.
func HourKey(t time.Time) int64 {
	return DayKey(t)*100 + int64(t.UTC().Hour())
}

// DayKey encodes the calendar day of t as a decimal YYYYMMDD integer.
func DayKey(t time.Time) int64 {
	u := t.UTC()
	return int64(u.Year())*10000 + int64(u.Month())*100 + int64(u.Day())
}

// MonthKey encodes the calendar month of t as a decimal YYYYMM integer.
func MonthKey(t time.Time) int64 {
	u := t.UTC()
	return int64(u.Year())*100 + int64(u.Month())
}

// At returns all three window keys for the given instant. Counting and audit
// writes must use this same encoding so stored rows stay joinable with count
// queries.
func At(t time.Time) Keys {
	u := t.UTC()
	month := int64(u.Year())*100 + int64(u.Month())
	day := month*100 + int64(u.Day())
	hour := day*100 + int64(u.Hour())
	return Keys{Hour: hour, Day: day, Month: month}
}
