package appointment

import "time"

// ComputeRevenue sums completed-appointment fees into total, today, this week
// (Monday start) and this month, anchored at now's wall clock. Completed
// appointments with an unreadable timestamp only count towards Total.
//
// ThisWeek can exceed ThisMonth when the current week began in the previous
// month: days before the 1st count towards the week but not the month.
func ComputeRevenue(list []Appointment, now time.Time) RevenueSummary {
	now = Naive(now)
	weekStart := startOfWeek(now)
	monthStart := startOfMonth(now)

	var sum RevenueSummary
	for _, a := range list {
		if !a.IsCompleted() {
			continue
		}
		fee := a.Fee()
		sum.Total += fee

		at, ok := a.Start()
		if !ok {
			continue
		}
		if sameDay(at, now) {
			sum.Today += fee
		}
		if !at.Before(weekStart) {
			sum.ThisWeek += fee
		}
		if !at.Before(monthStart) {
			sum.ThisMonth += fee
		}
	}
	return sum
}
