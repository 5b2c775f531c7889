package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-admin-console/internal/appointment"
	"github.com/hackgods/appointment-admin-console/internal/db"
	"github.com/hackgods/appointment-admin-console/internal/logging"
)

var (
	specialties = []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
	}
	clinics = []string{"Central", "Harbor", "Northside", "Riverside", ""}
	reasons = []string{"Checkup", "Follow-up", "Consultation", "Lab review", "Vaccination", "Prescription renewal"}
)

func main() {
	_ = godotenv.Load()

	logger, err := logging.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}

	faker := gofakeit.New(0)

	doctors, err := seedDoctors(context.Background(), pool, faker, getInt("SEED_DOCTORS", 12), logger)
	if err != nil {
		logger.Fatal("seed doctors", zap.Error(err))
	}
	if err := seedAppointments(context.Background(), pool, faker, doctors, getInt("SEED_APPOINTMENTS", 600), logger); err != nil {
		logger.Fatal("seed appointments", zap.Error(err))
	}

	logger.Info("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger *zap.Logger) ([]uuid.UUID, error) {
	logger.Info("seeding doctors", zap.Int("count", count))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at)
			VALUES ($1, $2, $3, now())
		`, id, "Dr. "+faker.LastName(), faker.RandomString(specialties))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// seedAppointments spreads bookings over the two weeks before and four weeks
// after today in quarter-hour steps. Nothing prevents two bookings of the same
// doctor from landing close together, so the data set contains clashes.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, doctors []uuid.UUID, count int, logger *zap.Logger) error {
	logger.Info("seeding appointments", zap.Int("count", count))

	const batchSize = 200
	today := appointment.Naive(time.Now())
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			startsAt := today.
				AddDate(0, 0, faker.IntRange(-14, 28)).
				Add(8*time.Hour + time.Duration(faker.IntRange(0, 39))*15*time.Minute)
			status := pickStatus(faker, startsAt.Before(today))
			fee := float64(faker.IntRange(10, 100) * 50)

			var doctorID *uuid.UUID
			if faker.IntRange(0, 49) > 0 {
				d := doctors[faker.IntRange(0, len(doctors)-1)]
				doctorID = &d
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, doctor_id, patient_name, appointment_date_time, status,
				                          consultation_fee, clinic_name, reason)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, uuid.New(), doctorID, faker.Name(), startsAt, string(status), fee,
				faker.RandomString(clinics), faker.RandomString(reasons))
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
		logger.Info("appointments seeded", zap.Int("done", end), zap.Int("total", count))
	}
	return nil
}

func pickStatus(faker *gofakeit.Faker, past bool) appointment.Status {
	roll := faker.IntRange(0, 99)
	if past {
		switch {
		case roll < 65:
			return appointment.StatusCompleted
		case roll < 80:
			return appointment.StatusNoShow
		default:
			return appointment.StatusCancelled
		}
	}
	switch {
	case roll < 50:
		return appointment.StatusConfirmed
	case roll < 80:
		return appointment.StatusPendingPayment
	case roll < 90:
		return appointment.StatusInProgress
	default:
		return appointment.StatusCancelled
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
