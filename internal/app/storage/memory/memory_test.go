package memory

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/habitloop/habitloop/internal/app/domain/checkin"
	"github.com/habitloop/habitloop/internal/app/domain/habit"
	"github.com/habitloop/habitloop/internal/app/domain/profile"
	"github.com/habitloop/habitloop/internal/app/domain/user"
)

func TestCreateCheckInIdempotent(t *testing.T) {
	store := New()
	ctx := context.Background()

	h, err := store.CreateHabit(ctx, habit.Habit{OwnerID: "o1", Name: "Read", Active: true})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}

	day := checkin.DateOf(time.Date(2026, time.March, 10, 15, 4, 5, 0, time.UTC))
	first, created, err := store.CreateCheckIn(ctx, checkin.CheckIn{HabitID: h.ID, Date: day, MinutesSpent: 10})
	if err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}

	second, created, err := store.CreateCheckIn(ctx, checkin.CheckIn{HabitID: h.ID, Date: day, MinutesSpent: 99})
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if created {
		t.Fatalf("expected created=false for the same day")
	}
	if second.ID != first.ID || second.MinutesSpent != 10 {
		t.Fatalf("expected the original row, got %+v", second)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, user.Session{
		UserID:    "u1",
		TokenHash: "hash-1",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := store.GetSessionByTokenHash(ctx, "hash-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.ID != sess.ID {
		t.Fatalf("expected session %s, got %s", sess.ID, got.ID)
	}

	if err := store.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.GetSessionByTokenHash(ctx, "hash-1"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	_, _ = store.CreateSession(ctx, user.Session{UserID: "u1", TokenHash: "live", ExpiresAt: now.Add(time.Hour)})
	_, _ = store.CreateSession(ctx, user.Session{UserID: "u1", TokenHash: "dead", ExpiresAt: now.Add(-time.Hour)})

	removed, err := store.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := store.GetSessionByTokenHash(ctx, "live"); err != nil {
		t.Fatalf("live session should survive: %v", err)
	}
}

func TestLeaderboardTieBreaksByOldestUpdate(t *testing.T) {
	store := New()
	ctx := context.Background()

	zoe, err := store.CreateUser(ctx, user.User{Username: "zoe", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	adam, err := store.CreateUser(ctx, user.User{Username: "adam", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	// zoe reaches 100 XP before adam does.
	if _, err := store.MutateProfile(ctx, zoe.ID, func(p *profile.Profile) error {
		p.TotalXP = 100
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := store.MutateProfile(ctx, adam.ID, func(p *profile.Profile) error {
		p.TotalXP = 100
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	entries, err := store.ListLeaderboard(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Username != "zoe" || entries[1].Username != "adam" {
		t.Fatalf("expected zoe ranked ahead of adam on the earlier update, got %q then %q",
			entries[0].Username, entries[1].Username)
	}
}

func TestMutateProfileRollsBackOnError(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.MutateProfile(ctx, "u1", func(p *profile.Profile) error {
		p.TotalXP = 50
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	boom := errors.New("boom")
	if _, err := store.MutateProfile(ctx, "u1", func(p *profile.Profile) error {
		p.TotalXP = 9999
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected fn error surfaced, got %v", err)
	}

	p, err := store.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.TotalXP != 50 {
		t.Fatalf("expected failed mutation discarded, got XP %d", p.TotalXP)
	}
}
