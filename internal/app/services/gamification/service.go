// Package gamification awards XP, levels, and achievements for check-ins.
package gamification

import (
	"context"
	"fmt"
	"time"

	"github.com/habitloop/habitloop/internal/app/domain/checkin"
	"github.com/habitloop/habitloop/internal/app/domain/habit"
	"github.com/habitloop/habitloop/internal/app/domain/profile"
	"github.com/habitloop/habitloop/internal/app/metrics"
	"github.com/habitloop/habitloop/internal/app/services/habits"
	"github.com/habitloop/habitloop/internal/app/storage"
	"github.com/habitloop/habitloop/pkg/logger"
)

// Errors returned by the gamification service.
var (
	// ErrInvalidInput marks validation failures on caller-supplied fields.
	ErrInvalidInput = fmt.Errorf("invalid input")
	// ErrFutureDate rejects check-ins dated after today.
	ErrFutureDate = fmt.Errorf("check-in date is in the future")
)

// CheckInResult bundles everything a check-in produced.
type CheckInResult struct {
	CheckIn   checkin.CheckIn      `json:"checkin"`
	Created   bool                 `json:"created"`
	Habit     habit.WithStats      `json:"habit"`
	Profile   profile.Profile      `json:"profile"`
	Breakdown *profile.XPBreakdown `json:"xp_breakdown,omitempty"`
}

// Service records check-ins and maintains gamification profiles.
type Service struct {
	habits   *habits.Service
	checkins storage.CheckInStore
	profiles storage.ProfileStore
	log      *logger.Logger

	// now is overridable in tests.
	now func() time.Time
}

// New constructs a gamification service.
func New(hs *habits.Service, checkins storage.CheckInStore, profiles storage.ProfileStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("gamification")
	}
	return &Service{
		habits:   hs,
		checkins: checkins,
		profiles: profiles,
		log:      log,
		now:      time.Now,
	}
}

// RecordCheckIn records a check-in for the given habit on the given date and
// applies the resulting rewards. The operation is idempotent per (habit, day):
// a repeated call returns the existing check-in with Created=false and awards
// nothing.
func (s *Service) RecordCheckIn(ctx context.Context, ownerID, habitID string, date time.Time, minutesSpent int) (CheckInResult, error) {
	h, err := s.habits.GetOwned(ctx, ownerID, habitID)
	if err != nil {
		return CheckInResult{}, err
	}
	if minutesSpent < 0 {
		return CheckInResult{}, fmt.Errorf("%w: minutes_spent cannot be negative", ErrInvalidInput)
	}

	today := checkin.DateOf(s.now())
	day := checkin.DateOf(date)
	if day.IsZero() {
		day = today
	}
	if day.After(today) {
		return CheckInResult{}, ErrFutureDate
	}

	// Compute the streak this check-in would produce so the award can be
	// stored on the row itself.
	dates, err := s.checkins.ListCheckInDates(ctx, h.ID)
	if err != nil {
		return CheckInResult{}, err
	}
	prospective := habits.StatsForDates(append(dates, day), today)
	breakdown := ComputeXPAward(prospective.CurrentStreak, minutesSpent)

	ci, created, err := s.checkins.CreateCheckIn(ctx, checkin.CheckIn{
		HabitID:      h.ID,
		Date:         day,
		MinutesSpent: minutesSpent,
		XPAwarded:    breakdown.Total(),
	})
	if err != nil {
		return CheckInResult{}, err
	}

	result := CheckInResult{CheckIn: ci, Created: created}
	metrics.RecordCheckIn(created, breakdown.Total())

	if created {
		result.Breakdown = &breakdown
		result.Profile, err = s.applyRewards(ctx, ownerID, breakdown, minutesSpent, prospective.CurrentStreak)
	} else {
		// Duplicate day: return the existing row untouched.
		result.Profile, err = s.profiles.EnsureProfile(ctx, ownerID)
	}
	if err != nil {
		return CheckInResult{}, err
	}

	stats, err := s.habits.StatsAt(ctx, h.ID, today)
	if err != nil {
		return CheckInResult{}, err
	}
	result.Habit = habit.WithStats{Habit: h, Stats: stats}

	if created {
		s.log.WithFields(map[string]interface{}{
			"habit_id": h.ID,
			"owner_id": ownerID,
			"date":     day.Format("2006-01-02"),
			"xp":       breakdown.Total(),
			"streak":   prospective.CurrentStreak,
		}).Info("check-in recorded")
	}
	return result, nil
}

// applyRewards credits XP and minutes and unlocks any newly earned
// achievements under the profile's write lock.
func (s *Service) applyRewards(ctx context.Context, ownerID string, breakdown profile.XPBreakdown, minutesSpent, streak int) (profile.Profile, error) {
	totalCheckins, err := s.checkins.CountCheckInsForOwner(ctx, ownerID)
	if err != nil {
		return profile.Profile{}, err
	}

	now := s.now().UTC()
	var unlocked []string
	p, err := s.profiles.MutateProfile(ctx, ownerID, func(p *profile.Profile) error {
		p.TotalXP += breakdown.Total()
		p.TotalMinutesLogged += minutesSpent
		p.Level = LevelFromXP(p.TotalXP)

		if totalCheckins >= 1 && p.Unlock(profile.AchievementFirstStep, now) {
			unlocked = append(unlocked, profile.AchievementFirstStep)
		}
		if streak >= profile.OnFireStreak && p.Unlock(profile.AchievementOnFire, now) {
			unlocked = append(unlocked, profile.AchievementOnFire)
		}
		if p.TotalMinutesLogged >= profile.TenHoursMinutes && p.Unlock(profile.AchievementTenHours, now) {
			unlocked = append(unlocked, profile.AchievementTenHours)
		}
		return nil
	})
	if err != nil {
		return profile.Profile{}, err
	}

	for _, code := range unlocked {
		metrics.RecordAchievement(code)
		s.log.WithField("user_id", ownerID).
			WithField("achievement", code).
			Info("achievement unlocked")
	}
	return p, nil
}

// Profile returns the user's gamification profile, creating it if needed.
func (s *Service) Profile(ctx context.Context, userID string) (profile.Profile, error) {
	return s.profiles.EnsureProfile(ctx, userID)
}

// Reconcile recomputes a profile's aggregates from the check-in history and
// repairs any drift. XP is left as credited; minutes, level, and achievements
// are derived. Achievements are add-only: reconciliation never revokes one.
func (s *Service) Reconcile(ctx context.Context, userID string) (profile.Profile, error) {
	minutes, err := s.checkins.SumMinutesForOwner(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}
	count, err := s.checkins.CountCheckInsForOwner(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}
	maxStreak, err := s.maxStreak(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}

	now := s.now().UTC()
	var unlocked []string
	p, err := s.profiles.MutateProfile(ctx, userID, func(p *profile.Profile) error {
		p.TotalMinutesLogged = minutes
		p.Level = LevelFromXP(p.TotalXP)

		if count >= 1 && p.Unlock(profile.AchievementFirstStep, now) {
			unlocked = append(unlocked, profile.AchievementFirstStep)
		}
		if maxStreak >= profile.OnFireStreak && p.Unlock(profile.AchievementOnFire, now) {
			unlocked = append(unlocked, profile.AchievementOnFire)
		}
		if minutes >= profile.TenHoursMinutes && p.Unlock(profile.AchievementTenHours, now) {
			unlocked = append(unlocked, profile.AchievementTenHours)
		}
		return nil
	})
	if err != nil {
		return profile.Profile{}, err
	}

	for _, code := range unlocked {
		metrics.RecordAchievement(code)
	}
	s.log.WithFields(map[string]interface{}{
		"user_id":  userID,
		"minutes":  minutes,
		"checkins": count,
		"level":    p.Level,
	}).Debug("profile reconciled")
	return p, nil
}

// maxStreak is the best current streak across the user's habits, including
// inactive ones.
func (s *Service) maxStreak(ctx context.Context, userID string) (int, error) {
	list, err := s.habits.List(ctx, userID, false)
	if err != nil {
		return 0, err
	}
	today := checkin.DateOf(s.now())
	best := 0
	for _, h := range list {
		stats, err := s.habits.StatsAt(ctx, h.ID, today)
		if err != nil {
			return 0, err
		}
		if stats.CurrentStreak > best {
			best = stats.CurrentStreak
		}
	}
	return best, nil
}
