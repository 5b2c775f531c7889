package appointment

import (
	"iter"
	"sort"
	"strings"
	"time"
)

// UnassignedClinic groups appointments that carry no clinic name.
const UnassignedClinic = "Unassigned"

// Dated yields (start, appointment) for every entry with a parseable
// timestamp, in list order. Malformed entries are skipped.
func Dated(list []Appointment) iter.Seq2[time.Time, Appointment] {
	return func(yield func(time.Time, Appointment) bool) {
		for _, a := range list {
			at, ok := a.Start()
			if !ok {
				continue
			}
			if !yield(at, a) {
				return
			}
		}
	}
}

// Malformed returns the entries whose timestamp cannot be parsed.
func Malformed(list []Appointment) []Appointment {
	var out []Appointment
	for _, a := range list {
		if _, ok := a.Start(); !ok {
			out = append(out, a)
		}
	}
	return out
}

// GroupByDate buckets appointments per calendar day, keeping list order
// inside each bucket.
func GroupByDate(list []Appointment) map[string][]Appointment {
	out := make(map[string][]Appointment)
	for at, a := range Dated(list) {
		key := DateKey(at)
		out[key] = append(out[key], a)
	}
	return out
}

type DayBucket struct {
	Date         string        `json:"date"`
	Appointments []Appointment `json:"appointments"`
}

// GroupByDay is the timeline projection: days ascending, each day's
// appointments ascending by start time.
func GroupByDay(list []Appointment) []DayBucket {
	type entry struct {
		at   time.Time
		appt Appointment
	}
	byDay := make(map[string][]entry)
	for at, a := range Dated(list) {
		key := DateKey(at)
		byDay[key] = append(byDay[key], entry{at: at, appt: a})
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	out := make([]DayBucket, 0, len(days))
	for _, d := range days {
		entries := byDay[d]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
		bucket := DayBucket{Date: d, Appointments: make([]Appointment, 0, len(entries))}
		for _, e := range entries {
			bucket.Appointments = append(bucket.Appointments, e.appt)
		}
		out = append(out, bucket)
	}
	return out
}

// GroupByClinic buckets the flat list by clinic name. Timestamps play no part,
// so malformed entries are kept here.
func GroupByClinic(list []Appointment) map[string][]Appointment {
	out := make(map[string][]Appointment)
	for _, a := range list {
		key := strings.TrimSpace(a.ClinicName)
		if key == "" {
			key = UnassignedClinic
		}
		out[key] = append(out[key], a)
	}
	return out
}

type CalendarDay struct {
	Date         string        `json:"date"`
	InRange      bool          `json:"inRange"`
	Today        bool          `json:"today"`
	Appointments []Appointment `json:"appointments"`
}

// MonthGrid lays anchor's month out as six Monday-first weeks. Cells outside
// the month are flagged with InRange=false but still carry their appointments.
func MonthGrid(byDate map[string][]Appointment, anchor, today time.Time) []CalendarDay {
	first := startOfMonth(Naive(anchor))
	start := startOfWeek(first)
	cells := make([]CalendarDay, 0, 42)
	for i := 0; i < 42; i++ {
		day := start.AddDate(0, 0, i)
		cells = append(cells, calendarDay(byDate, day, today, day.Month() == first.Month()))
	}
	return cells
}

// WeekColumns returns the seven days, Monday first, of anchor's week.
func WeekColumns(byDate map[string][]Appointment, anchor, today time.Time) []CalendarDay {
	start := startOfWeek(Naive(anchor))
	cols := make([]CalendarDay, 0, 7)
	for i := 0; i < 7; i++ {
		cols = append(cols, calendarDay(byDate, start.AddDate(0, 0, i), today, true))
	}
	return cols
}

func calendarDay(byDate map[string][]Appointment, day, today time.Time, inRange bool) CalendarDay {
	key := DateKey(day)
	appts := byDate[key]
	if appts == nil {
		appts = []Appointment{}
	}
	return CalendarDay{
		Date:         key,
		InRange:      inRange,
		Today:        !today.IsZero() && key == DateKey(Naive(today)),
		Appointments: appts,
	}
}

// ListQuery narrows the flat list view.
type ListQuery struct {
	Search   string
	DoctorID ID
	Clinic   string
}

// FilterList applies q and sorts by start time. Entries without a parseable
// time sort last in their original order.
func FilterList(list []Appointment, q ListQuery) []Appointment {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	clinic := strings.TrimSpace(q.Clinic)

	out := make([]Appointment, 0, len(list))
	for _, a := range list {
		if q.DoctorID != "" && a.DoctorID != q.DoctorID {
			continue
		}
		if clinic != "" && !strings.EqualFold(a.ClinicName, clinic) {
			continue
		}
		if needle != "" && !matches(a, needle) {
			continue
		}
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, okI := out[i].Start()
		tj, okJ := out[j].Start()
		switch {
		case okI && okJ:
			return ti.Before(tj)
		case okI:
			return true
		default:
			return false
		}
	})
	return out
}

func matches(a Appointment, needle string) bool {
	for _, field := range []string{a.PatientName, a.DoctorName, a.ClinicName, a.Reason, string(a.ID)} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
