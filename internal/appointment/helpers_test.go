package appointment

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

func appt(id, doctor, at string, status Status) Appointment {
	return Appointment{
		ID:                  ID(id),
		DoctorID:            ID(doctor),
		PatientName:         "Patient " + id,
		DoctorName:          "Dr. " + doctor,
		AppointmentDateTime: at,
		Status:              status,
		ClinicName:          "Central",
	}
}

func completed(id, at string, fee float64) Appointment {
	a := appt(id, "d1", at, StatusCompleted)
	a.ConsultationFee = &fee
	return a
}

// randomAppointments builds n appointments spread over a few doctors and days
// so that clashes, cancellations and malformed timestamps all occur.
func randomAppointments(faker *gofakeit.Faker, n int) []Appointment {
	statuses := []Status{
		StatusPendingPayment, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow, Status("WAITLISTED"),
	}
	base := time.Date(2025, 12, 8, 8, 0, 0, 0, time.UTC)

	out := make([]Appointment, 0, n)
	for i := 0; i < n; i++ {
		at := base.AddDate(0, 0, faker.IntRange(0, 2)).Add(time.Duration(faker.IntRange(0, 40)) * 15 * time.Minute)
		raw := FormatLocal(at)
		if faker.IntRange(0, 19) == 0 {
			raw = "broken"
		}
		doctor := ID(fmt.Sprintf("d%d", faker.IntRange(1, 3)))
		if faker.IntRange(0, 19) == 0 {
			doctor = ""
		}
		fee := float64(faker.IntRange(-100, 5000))
		out = append(out, Appointment{
			ID:                  ID(fmt.Sprintf("a%03d", i)),
			DoctorID:            doctor,
			PatientName:         faker.Name(),
			DoctorName:          faker.Name(),
			AppointmentDateTime: raw,
			Status:              statuses[faker.IntRange(0, len(statuses)-1)],
			ConsultationFee:     &fee,
			ClinicName:          faker.Company(),
			Reason:              faker.RandomString([]string{"Checkup", "Follow-up", "Consultation", "Lab review"}),
		})
	}
	return out
}
