package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/careloop/scheduling/internal/availability"
	"github.com/careloop/scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	_ = godotenv.Load()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	providerIDs, err := seedProviders(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	patientIDs, err := seedPatients(context.Background(), pool, 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedProfiles(context.Background(), pool, providerIDs); err != nil {
		log.Fatalf("seed profiles: %v", err)
	}
	if err := seedUnassignedAppointments(context.Background(), pool, patientIDs, 300); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d providers", count)

	specializations := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specializations[gofakeit.Number(0, len(specializations)-1)]
		verified := gofakeit.Number(0, 9) > 0 // roughly one in ten unverified

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, specialization, is_verified, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, spec, verified)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("providers seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at)
				VALUES ($1, $2, $3, now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	return ids, nil
}

func seedProfiles(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID) error {
	log.Printf("seeding %d availability profiles", len(providerIDs))

	store := availability.NewPgProfileStore(pool)
	timezones := []string{"UTC", "America/New_York", "Europe/London", "Asia/Kolkata"}
	durations := []int{15, 20, 30, 45, 60}

	for _, providerID := range providerIDs {
		open := availability.TimeOfDay(gofakeit.Number(7, 10) * 60)
		closeAt := availability.TimeOfDay(gofakeit.Number(16, 19) * 60)

		hours := make(map[time.Weekday]availability.DayHours)
		for d := time.Monday; d <= time.Friday; d++ {
			hours[d] = availability.DayHours{Enabled: true, Start: open, End: closeAt}
		}
		hours[time.Saturday] = availability.DayHours{
			Enabled: gofakeit.Bool(),
			Start:   open,
			End:     open.AddMinutes(4 * 60),
		}
		hours[time.Sunday] = availability.DayHours{Enabled: false}

		profile := &availability.Profile{
			ProviderID:  providerID,
			WeeklyHours: hours,
			BreakTimes: []availability.BreakTime{
				{Start: 12 * 60, End: 13 * 60, Label: "Lunch"},
			},
			SlotDurationMinutes: durations[gofakeit.Number(0, len(durations)-1)],
			BufferMinutes:       gofakeit.Number(0, 2) * 5,
			AdvanceBookingDays:  30,
			Timezone:            timezones[gofakeit.Number(0, len(timezones)-1)],
		}

		if err := store.Put(ctx, profile); err != nil {
			return err
		}
	}

	log.Println("profiles seeded")
	return nil
}

func seedUnassignedAppointments(ctx context.Context, pool *pgxpool.Pool, patientIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d unassigned appointments", count)

	issues := []string{
		"Persistent headaches",
		"Annual check-up",
		"Lower back pain",
		"Skin rash on forearm",
		"Follow-up on lab results",
		"Trouble sleeping",
		"Seasonal allergies",
	}
	priorities := []string{"low", "normal", "normal", "normal", "high", "urgent"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
		issue := issues[gofakeit.Number(0, len(issues)-1)]
		priority := priorities[gofakeit.Number(0, len(priorities)-1)]
		preferred := time.Now().AddDate(0, 0, gofakeit.Number(1, 21))

		_, err := tx.Exec(ctx, `
			INSERT INTO appointments
				(id, patient_id, booked_by_id, issue, priority, preferred_date,
				 duration_minutes, status, created_at, updated_at)
			VALUES ($1, $2, $2, $3, $4, $5, 0, 'pending', now(), now())
		`, uuid.New(), patientID, issue, priority, preferred)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("appointments seeded")
	return nil
}
