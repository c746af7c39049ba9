// Package habits manages habit records and their derived statistics.
package habits

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/habitloop/habitloop/internal/app/domain/checkin"
	"github.com/habitloop/habitloop/internal/app/domain/habit"
	"github.com/habitloop/habitloop/internal/app/storage"
	"github.com/habitloop/habitloop/pkg/logger"
)

const maxNameLength = 120

// Errors returned by the habit service.
var (
	// ErrInvalidInput marks validation failures on caller-supplied fields.
	ErrInvalidInput = fmt.Errorf("invalid input")
	// ErrDuplicateName reports a habit name collision within one owner.
	ErrDuplicateName = fmt.Errorf("habit name already in use")
)

// Service manages habits and exposes their statistics. All operations are
// owner-scoped: habits belonging to another user behave as if they do not
// exist.
type Service struct {
	habits   storage.HabitStore
	checkins storage.CheckInStore
	log      *logger.Logger
}

// New constructs a habit service.
func New(habits storage.HabitStore, checkins storage.CheckInStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("habits")
	}
	return &Service{
		habits:   habits,
		checkins: checkins,
		log:      log,
	}
}

// Create registers a new habit. Names are unique per owner,
// case-insensitively.
func (s *Service) Create(ctx context.Context, ownerID, name, description string) (habit.Habit, error) {
	ownerID = strings.TrimSpace(ownerID)
	name = strings.TrimSpace(name)

	if ownerID == "" {
		return habit.Habit{}, fmt.Errorf("%w: owner_id is required", ErrInvalidInput)
	}
	if name == "" {
		return habit.Habit{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(name) > maxNameLength {
		return habit.Habit{}, fmt.Errorf("%w: name exceeds %d characters", ErrInvalidInput, maxNameLength)
	}

	if err := s.checkNameFree(ctx, ownerID, name, ""); err != nil {
		return habit.Habit{}, err
	}

	h := habit.Habit{
		OwnerID:     ownerID,
		Name:        name,
		Description: strings.TrimSpace(description),
		Active:      true,
	}
	h, err := s.habits.CreateHabit(ctx, h)
	if err != nil {
		return habit.Habit{}, err
	}
	s.log.WithField("habit_id", h.ID).
		WithField("owner_id", ownerID).
		Info("habit created")
	return h, nil
}

// Update applies partial changes to a habit. Nil fields are left untouched.
func (s *Service) Update(ctx context.Context, ownerID, habitID string, name, description *string, active *bool) (habit.Habit, error) {
	h, err := s.getOwned(ctx, ownerID, habitID)
	if err != nil {
		return habit.Habit{}, err
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return habit.Habit{}, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
		}
		if len(trimmed) > maxNameLength {
			return habit.Habit{}, fmt.Errorf("%w: name exceeds %d characters", ErrInvalidInput, maxNameLength)
		}
		if !strings.EqualFold(trimmed, h.Name) {
			if err := s.checkNameFree(ctx, ownerID, trimmed, h.ID); err != nil {
				return habit.Habit{}, err
			}
		}
		h.Name = trimmed
	}
	if description != nil {
		h.Description = strings.TrimSpace(*description)
	}
	if active != nil {
		h.Active = *active
	}

	h, err = s.habits.UpdateHabit(ctx, h)
	if err != nil {
		return habit.Habit{}, err
	}
	s.log.WithField("habit_id", h.ID).
		WithField("owner_id", ownerID).
		Info("habit updated")
	return h, nil
}

// Get returns an owned habit with its statistics.
func (s *Service) Get(ctx context.Context, ownerID, habitID string) (habit.WithStats, error) {
	h, err := s.getOwned(ctx, ownerID, habitID)
	if err != nil {
		return habit.WithStats{}, err
	}
	stats, err := s.Stats(ctx, h.ID)
	if err != nil {
		return habit.WithStats{}, err
	}
	return habit.WithStats{Habit: h, Stats: stats}, nil
}

// List returns the owner's habits ordered by name, each with statistics.
func (s *Service) List(ctx context.Context, ownerID string, activeOnly bool) ([]habit.WithStats, error) {
	list, err := s.habits.ListHabits(ctx, ownerID, activeOnly)
	if err != nil {
		return nil, err
	}

	result := make([]habit.WithStats, 0, len(list))
	for _, h := range list {
		stats, err := s.Stats(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, habit.WithStats{Habit: h, Stats: stats})
	}
	return result, nil
}

// Delete removes an owned habit and, through the store, its check-ins.
func (s *Service) Delete(ctx context.Context, ownerID, habitID string) error {
	h, err := s.getOwned(ctx, ownerID, habitID)
	if err != nil {
		return err
	}
	if err := s.habits.DeleteHabit(ctx, h.ID); err != nil {
		return err
	}
	s.log.WithField("habit_id", h.ID).
		WithField("owner_id", ownerID).
		Info("habit deleted")
	return nil
}

// Stats computes the derived statistics for a habit.
func (s *Service) Stats(ctx context.Context, habitID string) (habit.Stats, error) {
	dates, err := s.checkins.ListCheckInDates(ctx, habitID)
	if err != nil {
		return habit.Stats{}, err
	}
	return computeStats(dates, checkin.Today()), nil
}

// StatsAt computes statistics as of the given date. Used by tests and the
// reconciler.
func (s *Service) StatsAt(ctx context.Context, habitID string, today time.Time) (habit.Stats, error) {
	dates, err := s.checkins.ListCheckInDates(ctx, habitID)
	if err != nil {
		return habit.Stats{}, err
	}
	return computeStats(dates, today), nil
}

// CheckIns lists an owned habit's check-ins, newest first.
func (s *Service) CheckIns(ctx context.Context, ownerID, habitID string) ([]checkin.CheckIn, error) {
	h, err := s.getOwned(ctx, ownerID, habitID)
	if err != nil {
		return nil, err
	}
	return s.checkins.ListCheckIns(ctx, h.ID)
}

// GetOwned returns the bare habit after the ownership check.
func (s *Service) GetOwned(ctx context.Context, ownerID, habitID string) (habit.Habit, error) {
	return s.getOwned(ctx, ownerID, habitID)
}

func (s *Service) getOwned(ctx context.Context, ownerID, habitID string) (habit.Habit, error) {
	h, err := s.habits.GetHabit(ctx, habitID)
	if err != nil {
		return habit.Habit{}, err
	}
	if h.OwnerID != ownerID {
		// Do not reveal foreign habits.
		return habit.Habit{}, fmt.Errorf("habit %s: %w", habitID, sql.ErrNoRows)
	}
	return h, nil
}

func (s *Service) checkNameFree(ctx context.Context, ownerID, name, excludeID string) error {
	existing, err := s.habits.ListHabits(ctx, ownerID, false)
	if err != nil {
		return err
	}
	for _, h := range existing {
		if h.ID != excludeID && strings.EqualFold(h.Name, name) {
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
	}
	return nil
}
