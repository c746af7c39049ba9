// Package storage defines the persistence interfaces for the application.
// Implementations live in the memory and postgres subpackages.
package storage

import (
	"context"
	"time"

	"github.com/habitloop/habitloop/internal/app/domain/checkin"
	"github.com/habitloop/habitloop/internal/app/domain/habit"
	"github.com/habitloop/habitloop/internal/app/domain/profile"
	"github.com/habitloop/habitloop/internal/app/domain/user"
)

// UserStore persists users and login sessions.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByUsername(ctx context.Context, username string) (user.User, error)
	TouchUserLogin(ctx context.Context, id string, at time.Time) error
	ListUserIDs(ctx context.Context) ([]string, error)

	CreateSession(ctx context.Context, s user.Session) (user.Session, error)
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (user.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// HabitStore persists habit records.
type HabitStore interface {
	CreateHabit(ctx context.Context, h habit.Habit) (habit.Habit, error)
	UpdateHabit(ctx context.Context, h habit.Habit) (habit.Habit, error)
	GetHabit(ctx context.Context, id string) (habit.Habit, error)
	ListHabits(ctx context.Context, ownerID string, activeOnly bool) ([]habit.Habit, error)
	DeleteHabit(ctx context.Context, id string) error
}

// CheckInStore persists daily check-ins. CreateCheckIn is idempotent per
// (habit, date): when a row already exists it is returned with created=false.
type CheckInStore interface {
	CreateCheckIn(ctx context.Context, ci checkin.CheckIn) (checkin.CheckIn, bool, error)
	ListCheckIns(ctx context.Context, habitID string) ([]checkin.CheckIn, error)
	ListCheckInDates(ctx context.Context, habitID string) ([]time.Time, error)
	CountCheckInsForOwner(ctx context.Context, ownerID string) (int, error)
	SumMinutesForOwner(ctx context.Context, ownerID string) (int, error)
}

// ProfileStore persists gamification profiles. MutateProfile applies fn to
// the profile under a per-user write lock so concurrent rewards cannot lose
// updates; the profile is created on first use.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (profile.Profile, error)
	EnsureProfile(ctx context.Context, userID string) (profile.Profile, error)
	MutateProfile(ctx context.Context, userID string, fn func(*profile.Profile) error) (profile.Profile, error)
	ListLeaderboard(ctx context.Context, limit, offset int) ([]profile.LeaderboardEntry, error)
}
