package appointment

import (
	"errors"
	"strings"
	"time"
)

// LocalLayout is the naive local timestamp the appointment service expects:
// no zone suffix, seconds precision.
const LocalLayout = "2006-01-02T15:04:05"

const dateLayout = "2006-01-02"

var ErrInvalidDateTime = errors.New("invalid date time")

var naiveLayouts = []string{
	LocalLayout,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDateTime reads an appointment timestamp as wall-clock time. Values with
// a zone offset keep their wall clock and drop the offset. The result is
// always expressed in UTC so arithmetic never crosses DST transitions.
func ParseDateTime(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrInvalidDateTime
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Naive(t), nil
	}
	return time.Time{}, ErrInvalidDateTime
}

// ParseManual combines the date and time fields of the manual reschedule form.
func ParseManual(date, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, ErrInvalidDateTime
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.ParseInLocation(dateLayout+"T"+layout, date+"T"+clock, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDateTime
}

// ParseDate reads a calendar anchor such as 2025-12-10.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidDateTime
	}
	return t, nil
}

// FormatLocal renders t's wall clock without a zone suffix.
func FormatLocal(t time.Time) string {
	return t.Format(LocalLayout)
}

// Naive keeps t's wall clock and moves it to UTC.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// DateKey is the calendar-day key used by the groupings.
func DateKey(t time.Time) string {
	return t.Format(dateLayout)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the Monday that opens t's week.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
