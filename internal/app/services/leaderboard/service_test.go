package leaderboard

import (
	"context"
	"testing"

	"github.com/habitloop/habitloop/internal/app/domain/profile"
	"github.com/habitloop/habitloop/internal/app/domain/user"
	"github.com/habitloop/habitloop/internal/app/storage/memory"
)

func seed(t *testing.T, store *memory.Store, username string, xp int) {
	t.Helper()
	ctx := context.Background()
	u, err := store.CreateUser(ctx, user.User{Username: username, PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := store.MutateProfile(ctx, u.ID, func(p *profile.Profile) error {
		p.TotalXP = xp
		return nil
	}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

func TestTopOrdersByXP(t *testing.T) {
	store := memory.New()
	seed(t, store, "alice", 300)
	seed(t, store, "bob", 500)
	seed(t, store, "carol", 100)

	svc := New(store, nil, nil)
	entries, err := svc.Top(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Username != "bob" || entries[0].Rank != 1 {
		t.Fatalf("expected bob first, got %+v", entries[0])
	}
	if entries[2].Username != "carol" || entries[2].Rank != 3 {
		t.Fatalf("expected carol last, got %+v", entries[2])
	}
}

func TestTopPagination(t *testing.T) {
	store := memory.New()
	seed(t, store, "alice", 300)
	seed(t, store, "bob", 500)
	seed(t, store, "carol", 100)

	svc := New(store, nil, nil)
	entries, err := svc.Top(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	// Ranks are absolute, not page-relative.
	if entries[0].Username != "alice" || entries[0].Rank != 2 {
		t.Fatalf("expected alice at rank 2, got %+v", entries[0])
	}
}

func TestTopClampsLimit(t *testing.T) {
	store := memory.New()
	seed(t, store, "alice", 100)

	svc := New(store, nil, nil)
	entries, err := svc.Top(context.Background(), 100000, -5)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}
