package appointment

import "time"

// DefaultConflictWindow is how close two bookings of the same doctor may start
// before they count as a double booking. The bound is exclusive.
const DefaultConflictWindow = 30 * time.Minute

// Overlaps reports whether a and b double-book the same doctor: both active,
// same non-empty doctor, same calendar day, starts less than window apart.
func Overlaps(a, b Appointment, window time.Duration) bool {
	if a.DoctorID == "" || a.DoctorID != b.DoctorID {
		return false
	}
	if a.IsCancelled() || b.IsCancelled() {
		return false
	}
	ta, ok := a.Start()
	if !ok {
		return false
	}
	tb, ok := b.Start()
	if !ok {
		return false
	}
	return sameDay(ta, tb) && gap(ta, tb) < window
}

type bucketKey struct {
	doctor ID
	date   string
}

type datedAppointment struct {
	at   time.Time
	appt Appointment
}

// DetectConflicts returns every unordered pair of appointments that Overlaps.
// Candidates are bucketed by doctor and day first, so only appointments that
// could possibly clash are compared.
func DetectConflicts(list []Appointment, window time.Duration) []ConflictPair {
	if window <= 0 {
		window = DefaultConflictWindow
	}

	buckets := make(map[bucketKey][]datedAppointment)
	var order []bucketKey
	for at, a := range Dated(list) {
		if a.DoctorID == "" || a.IsCancelled() {
			continue
		}
		key := bucketKey{doctor: a.DoctorID, date: DateKey(at)}
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], datedAppointment{at: at, appt: a})
	}

	var pairs []ConflictPair
	for _, key := range order {
		entries := buckets[key]
		for i := 0; i < len(entries); i++ {
			for j := i + 1; j < len(entries); j++ {
				d := gap(entries[i].at, entries[j].at)
				if d < window {
					pairs = append(pairs, ConflictPair{First: entries[i].appt, Second: entries[j].appt, Gap: d})
				}
			}
		}
	}
	return pairs
}

// FindConflict checks moving at its candidate start against the rest of list.
// The moving appointment itself is skipped by id.
func FindConflict(list []Appointment, moving Appointment, newStart time.Time, window time.Duration) (Appointment, bool) {
	if window <= 0 {
		window = DefaultConflictWindow
	}
	candidate := moving
	candidate.AppointmentDateTime = FormatLocal(newStart)
	for _, other := range list {
		if other.ID == moving.ID {
			continue
		}
		if Overlaps(candidate, other, window) {
			return other, true
		}
	}
	return Appointment{}, false
}

// ConflictingIDs indexes the appointments that take part in at least one pair.
func ConflictingIDs(pairs []ConflictPair) map[ID]bool {
	ids := make(map[ID]bool, len(pairs)*2)
	for _, p := range pairs {
		ids[p.First.ID] = true
		ids[p.Second.ID] = true
	}
	return ids
}

func gap(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
