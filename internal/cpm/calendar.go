package cpm

import "time"

const secondsPerDay = 24 * 60 * 60

// DayNumber returns the number of days from 1970-01-01 to t's calendar date,
// read in t's own location. Schedule arithmetic is done on these integers so
// it cannot drift across DST changes.
func DayNumber(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay)
}

// Date converts a day number back to midnight of that date in loc (UTC if nil).
func Date(day int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := time.Unix(int64(day)*secondsPerDay, 0).UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// anchorDay returns the day a task start date refers to. Date-only input is
// parsed as midnight UTC and keeps its calendar date whatever loc is; any
// other instant is read in loc.
func anchorDay(t time.Time, loc *time.Location) int {
	if t.Location() == time.UTC && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return DayNumber(t)
	}
	return DayNumber(t.In(loc))
}
