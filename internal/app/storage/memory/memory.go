// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/habitloop/habitloop/internal/app/domain/checkin"
	"github.com/habitloop/habitloop/internal/app/domain/habit"
	"github.com/habitloop/habitloop/internal/app/domain/profile"
	"github.com/habitloop/habitloop/internal/app/domain/user"
	"github.com/habitloop/habitloop/internal/app/storage"
)

// Store is an in-memory persistence layer implementing every storage
// interface.
type Store struct {
	mu              sync.RWMutex
	nextID          int64
	users           map[string]user.User
	usersByUsername map[string]string
	sessions        map[string]user.Session
	sessionsByHash  map[string]string
	habits          map[string]habit.Habit
	checkins        map[string][]checkin.CheckIn
	profiles        map[string]profile.Profile
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.HabitStore = (*Store)(nil)
var _ storage.CheckInStore = (*Store)(nil)
var _ storage.ProfileStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:          1,
		users:           make(map[string]user.User),
		usersByUsername: make(map[string]string),
		sessions:        make(map[string]user.Session),
		sessionsByHash:  make(map[string]string),
		habits:          make(map[string]habit.Habit),
		checkins:        make(map[string][]checkin.CheckIn),
		profiles:        make(map[string]profile.Profile),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// --- UserStore ---------------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Username)
	if _, exists := s.usersByUsername[key]; exists {
		return user.User{}, fmt.Errorf("username %s already taken", u.Username)
	}
	if u.ID == "" {
		u.ID = s.nextIDLocked()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	s.users[u.ID] = u
	s.usersByUsername[key] = u.ID
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", id, sql.ErrNoRows)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByUsername[strings.ToLower(username)]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", username, sql.ErrNoRows)
	}
	return s.users[id], nil
}

func (s *Store) TouchUserLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, sql.ErrNoRows)
	}
	u.LastLoginAt = at.UTC()
	s.users[id] = u
	return nil
}

func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) CreateSession(_ context.Context, sess user.Session) (user.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = s.nextIDLocked()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	s.sessions[sess.ID] = sess
	s.sessionsByHash[sess.TokenHash] = sess.ID
	return sess, nil
}

func (s *Store) GetSessionByTokenHash(_ context.Context, tokenHash string) (user.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.sessionsByHash[tokenHash]
	if !ok {
		return user.Session{}, fmt.Errorf("session: %w", sql.ErrNoRows)
	}
	return s.sessions[id], nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, sql.ErrNoRows)
	}
	delete(s.sessions, id)
	delete(s.sessionsByHash, sess.TokenHash)
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			delete(s.sessionsByHash, sess.TokenHash)
			removed++
		}
	}
	return removed, nil
}

// --- HabitStore --------------------------------------------------------------

func (s *Store) CreateHabit(_ context.Context, h habit.Habit) (habit.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.ID == "" {
		h.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	h.CreatedAt = now
	h.UpdatedAt = now

	s.habits[h.ID] = h
	return h, nil
}

func (s *Store) UpdateHabit(_ context.Context, h habit.Habit) (habit.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.habits[h.ID]
	if !ok {
		return habit.Habit{}, fmt.Errorf("habit %s: %w", h.ID, sql.ErrNoRows)
	}
	h.OwnerID = existing.OwnerID
	h.CreatedAt = existing.CreatedAt
	h.UpdatedAt = time.Now().UTC()

	s.habits[h.ID] = h
	return h, nil
}

func (s *Store) GetHabit(_ context.Context, id string) (habit.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.habits[id]
	if !ok {
		return habit.Habit{}, fmt.Errorf("habit %s: %w", id, sql.ErrNoRows)
	}
	return h, nil
}

func (s *Store) ListHabits(_ context.Context, ownerID string, activeOnly bool) ([]habit.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []habit.Habit
	for _, h := range s.habits {
		if h.OwnerID != ownerID {
			continue
		}
		if activeOnly && !h.Active {
			continue
		}
		result = append(result, h)
	}
	sort.Slice(result, func(i, j int) bool {
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})
	return result, nil
}

func (s *Store) DeleteHabit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.habits[id]; !ok {
		return fmt.Errorf("habit %s: %w", id, sql.ErrNoRows)
	}
	delete(s.habits, id)
	delete(s.checkins, id)
	return nil
}

// --- CheckInStore ------------------------------------------------------------

func (s *Store) CreateCheckIn(_ context.Context, ci checkin.CheckIn) (checkin.CheckIn, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ci.Date = checkin.DateOf(ci.Date)
	for _, existing := range s.checkins[ci.HabitID] {
		if existing.Date.Equal(ci.Date) {
			return existing, false, nil
		}
	}

	if ci.ID == "" {
		ci.ID = s.nextIDLocked()
	}
	ci.CreatedAt = time.Now().UTC()
	s.checkins[ci.HabitID] = append(s.checkins[ci.HabitID], ci)
	return ci, true, nil
}

func (s *Store) ListCheckIns(_ context.Context, habitID string) ([]checkin.CheckIn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]checkin.CheckIn, len(s.checkins[habitID]))
	copy(result, s.checkins[habitID])
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.After(result[j].Date)
	})
	return result, nil
}

func (s *Store) ListCheckInDates(_ context.Context, habitID string) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dates := make([]time.Time, 0, len(s.checkins[habitID]))
	for _, ci := range s.checkins[habitID] {
		dates = append(dates, ci.Date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (s *Store) CountCheckInsForOwner(_ context.Context, ownerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for habitID, list := range s.checkins {
		if h, ok := s.habits[habitID]; ok && h.OwnerID == ownerID {
			total += len(list)
		}
	}
	return total, nil
}

func (s *Store) SumMinutesForOwner(_ context.Context, ownerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for habitID, list := range s.checkins {
		h, ok := s.habits[habitID]
		if !ok || h.OwnerID != ownerID {
			continue
		}
		for _, ci := range list {
			total += ci.MinutesSpent
		}
	}
	return total, nil
}

// --- ProfileStore ------------------------------------------------------------

func (s *Store) GetProfile(_ context.Context, userID string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return profile.Profile{}, fmt.Errorf("profile %s: %w", userID, sql.ErrNoRows)
	}
	return cloneProfile(p), nil
}

func (s *Store) EnsureProfile(_ context.Context, userID string) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneProfile(s.ensureProfileLocked(userID)), nil
}

func (s *Store) MutateProfile(_ context.Context, userID string, fn func(*profile.Profile) error) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.ensureProfileLocked(userID)
	if err := fn(&p); err != nil {
		return profile.Profile{}, err
	}
	p.UpdatedAt = time.Now().UTC()
	s.profiles[userID] = p
	return cloneProfile(p), nil
}

func (s *Store) ListLeaderboard(_ context.Context, limit, offset int) ([]profile.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type ranked struct {
		profile.LeaderboardEntry
		updatedAt time.Time
	}
	rows := make([]ranked, 0, len(s.profiles))
	for userID, p := range s.profiles {
		row := ranked{
			LeaderboardEntry: profile.LeaderboardEntry{
				UserID:  userID,
				TotalXP: p.TotalXP,
				Level:   p.Level,
			},
			updatedAt: p.UpdatedAt,
		}
		if u, ok := s.users[userID]; ok {
			row.Username = u.Username
		}
		rows = append(rows, row)
	}
	// Ties break towards the profile that reached the score first.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalXP != rows[j].TotalXP {
			return rows[i].TotalXP > rows[j].TotalXP
		}
		if !rows[i].updatedAt.Equal(rows[j].updatedAt) {
			return rows[i].updatedAt.Before(rows[j].updatedAt)
		}
		return rows[i].Username < rows[j].Username
	})
	entries := make([]profile.LeaderboardEntry, len(rows))
	for i, row := range rows {
		entries[i] = row.LeaderboardEntry
	}

	if offset >= len(entries) {
		return nil, nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = offset + i + 1
	}
	return entries, nil
}

func (s *Store) ensureProfileLocked(userID string) profile.Profile {
	p, ok := s.profiles[userID]
	if !ok {
		now := time.Now().UTC()
		p = profile.Profile{
			UserID:       userID,
			Level:        1,
			Achievements: make(map[string]time.Time),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		s.profiles[userID] = p
	}
	return p
}

func cloneProfile(p profile.Profile) profile.Profile {
	achievements := make(map[string]time.Time, len(p.Achievements))
	for code, at := range p.Achievements {
		achievements[code] = at
	}
	p.Achievements = achievements
	return p
}
