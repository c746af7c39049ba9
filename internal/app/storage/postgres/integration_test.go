//go:build integration && postgres

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/habitloop/habitloop/internal/app/domain/checkin"
	"github.com/habitloop/habitloop/internal/app/domain/habit"
	"github.com/habitloop/habitloop/internal/app/domain/profile"
	"github.com/habitloop/habitloop/internal/app/domain/user"
	"github.com/habitloop/habitloop/internal/platform/database"
	"github.com/habitloop/habitloop/internal/platform/migrations"
)

// Integration test against Postgres to ensure migrations + store round-trips
// work with real persistence.
func TestIntegrationPostgres(t *testing.T) {
	_ = godotenv.Load() // allow .env for local runs
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping Postgres integration")
	}

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Driver: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := New(db)

	u, err := store.CreateUser(ctx, user.User{
		Username:     "pg_integration_" + time.Now().Format("150405"),
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, `DELETE FROM app_users WHERE id = $1`, u.ID)
	})

	h, err := store.CreateHabit(ctx, habit.Habit{OwnerID: u.ID, Name: "Integration", Active: true})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}

	today := checkin.Today()
	ci, created, err := store.CreateCheckIn(ctx, checkin.CheckIn{
		HabitID:      h.ID,
		Date:         today,
		MinutesSpent: 25,
		XPAwarded:    12,
	})
	if err != nil {
		t.Fatalf("create check-in: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	// The unique constraint makes the second insert a no-op.
	dup, created, err := store.CreateCheckIn(ctx, checkin.CheckIn{HabitID: h.ID, Date: today, MinutesSpent: 99})
	if err != nil {
		t.Fatalf("duplicate check-in: %v", err)
	}
	if created || dup.ID != ci.ID || dup.MinutesSpent != 25 {
		t.Fatalf("expected existing row back, got created=%v %+v", created, dup)
	}

	dates, err := store.ListCheckInDates(ctx, h.ID)
	if err != nil {
		t.Fatalf("list dates: %v", err)
	}
	if len(dates) != 1 || !dates[0].Equal(today) {
		t.Fatalf("expected one date %s, got %v", today, dates)
	}

	p, err := store.MutateProfile(ctx, u.ID, func(p *profile.Profile) error {
		p.TotalXP = 12
		p.TotalMinutesLogged = 25
		if !p.Unlock("first_step", time.Now()) {
			t.Fatalf("expected fresh achievement unlock")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("mutate profile: %v", err)
	}
	if p.TotalXP != 12 {
		t.Fatalf("expected XP persisted, got %d", p.TotalXP)
	}

	// Achievements survive the JSONB round-trip.
	got, err := store.GetProfile(ctx, u.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if _, ok := got.Achievements["first_step"]; !ok {
		t.Fatalf("expected achievement round-tripped, got %v", got.Achievements)
	}

	entries, err := store.ListLeaderboard(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list leaderboard: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.UserID == u.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected user on the leaderboard")
	}
}
