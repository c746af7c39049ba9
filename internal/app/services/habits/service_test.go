package habits

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/habitloop/habitloop/internal/app/domain/checkin"
	"github.com/habitloop/habitloop/internal/app/storage/memory"
)

func newTestService() (*Service, *memory.Store) {
	store := memory.New()
	return New(store, store, nil), store
}

func TestCreateHabit(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	h, err := svc.Create(ctx, "owner-1", "  Morning Run  ", "30 minutes before work")
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	if h.Name != "Morning Run" {
		t.Fatalf("expected trimmed name, got %q", h.Name)
	}
	if !h.Active {
		t.Fatalf("expected new habit to be active")
	}
}

func TestCreateHabitValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, "owner-1", "", ""); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if _, err := svc.Create(ctx, "", "Read", ""); err == nil {
		t.Fatalf("expected error for missing owner")
	}
	long := strings.Repeat("x", maxNameLength+1)
	if _, err := svc.Create(ctx, "owner-1", long, ""); err == nil {
		t.Fatalf("expected error for oversized name")
	}
}

func TestCreateHabitDuplicateName(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, "owner-1", "Read", ""); err != nil {
		t.Fatalf("create habit: %v", err)
	}
	_, err := svc.Create(ctx, "owner-1", "READ", "")
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	// A different owner can reuse the name.
	if _, err := svc.Create(ctx, "owner-2", "Read", ""); err != nil {
		t.Fatalf("create habit for second owner: %v", err)
	}
}

func TestUpdateHabitPartial(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	h, err := svc.Create(ctx, "owner-1", "Read", "a chapter")
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}

	inactive := false
	updated, err := svc.Update(ctx, "owner-1", h.ID, nil, nil, &inactive)
	if err != nil {
		t.Fatalf("update habit: %v", err)
	}
	if updated.Active {
		t.Fatalf("expected habit deactivated")
	}
	if updated.Name != "Read" || updated.Description != "a chapter" {
		t.Fatalf("untouched fields changed: %+v", updated)
	}

	name := "Read More"
	updated, err = svc.Update(ctx, "owner-1", h.ID, &name, nil, nil)
	if err != nil {
		t.Fatalf("rename habit: %v", err)
	}
	if updated.Name != "Read More" {
		t.Fatalf("expected renamed habit, got %q", updated.Name)
	}
}

func TestForeignHabitBehavesAsMissing(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	h, err := svc.Create(ctx, "owner-1", "Read", "")
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}

	if _, err := svc.Get(ctx, "owner-2", h.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected not-found for foreign habit, got %v", err)
	}
	if err := svc.Delete(ctx, "owner-2", h.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected not-found on foreign delete, got %v", err)
	}
}

func TestListHabitsWithStats(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	h, err := svc.Create(ctx, "owner-1", "Read", "")
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	today := checkin.Today()
	for _, d := range []int{0, 1} {
		if _, _, err := store.CreateCheckIn(ctx, checkin.CheckIn{
			HabitID: h.ID,
			Date:    today.AddDate(0, 0, -d),
		}); err != nil {
			t.Fatalf("seed check-in: %v", err)
		}
	}

	list, err := svc.List(ctx, "owner-1", false)
	if err != nil {
		t.Fatalf("list habits: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 habit, got %d", len(list))
	}
	if list[0].Stats.CurrentStreak != 2 {
		t.Fatalf("expected streak 2, got %d", list[0].Stats.CurrentStreak)
	}
	if !list[0].Stats.CheckedInToday {
		t.Fatalf("expected CheckedInToday=true")
	}
}

func TestDeleteHabitRemovesCheckIns(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	h, err := svc.Create(ctx, "owner-1", "Read", "")
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	if _, _, err := store.CreateCheckIn(ctx, checkin.CheckIn{HabitID: h.ID, Date: checkin.Today()}); err != nil {
		t.Fatalf("seed check-in: %v", err)
	}

	if err := svc.Delete(ctx, "owner-1", h.ID); err != nil {
		t.Fatalf("delete habit: %v", err)
	}
	count, err := store.CountCheckInsForOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("count check-ins: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected check-ins removed with habit, got %d", count)
	}
}
