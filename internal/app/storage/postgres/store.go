// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/habitloop/habitloop/internal/app/domain/checkin"
	"github.com/habitloop/habitloop/internal/app/domain/habit"
	"github.com/habitloop/habitloop/internal/app/domain/profile"
	"github.com/habitloop/habitloop/internal/app/domain/user"
	"github.com/habitloop/habitloop/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db  *sql.DB
	dbx *sqlx.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.HabitStore = (*Store)(nil)
var _ storage.CheckInStore = (*Store)(nil)
var _ storage.ProfileStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, dbx: sqlx.NewDb(db, "postgres")}
}

// --- UserStore ---------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, strings.ToLower(u.Username), u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, created_at, last_login_at
		FROM app_users
		WHERE id = $1
	`, id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, created_at, last_login_at
		FROM app_users
		WHERE username = $1
	`, strings.ToLower(username)))
}

func (s *Store) scanUser(row *sql.Row) (user.User, error) {
	var (
		u         user.User
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &lastLogin); err != nil {
		return user.User{}, err
	}
	if lastLogin.Valid {
		u.LastLoginAt = lastLogin.Time.UTC()
	}
	return u, nil
}

func (s *Store) TouchUserLogin(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE app_users SET last_login_at = $2 WHERE id = $1
	`, id, at.UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM app_users ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CreateSession(ctx context.Context, sess user.Session) (user.Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_sessions (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt.UTC(), sess.CreatedAt)
	if err != nil {
		return user.Session{}, err
	}
	return sess, nil
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (user.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM app_sessions
		WHERE token_hash = $1
	`, tokenHash)

	var sess user.Session
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		return user.Session{}, err
	}
	return sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM app_sessions WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM app_sessions WHERE expires_at < $1
	`, now.UTC())
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// --- HabitStore --------------------------------------------------------------

func (s *Store) CreateHabit(ctx context.Context, h habit.Habit) (habit.Habit, error) {
	if h.OwnerID == "" {
		return habit.Habit{}, errors.New("owner_id required")
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	h.CreatedAt = now
	h.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_habits (id, owner_id, name, description, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, h.ID, h.OwnerID, h.Name, h.Description, h.Active, h.CreatedAt, h.UpdatedAt)
	if err != nil {
		return habit.Habit{}, err
	}
	return h, nil
}

func (s *Store) UpdateHabit(ctx context.Context, h habit.Habit) (habit.Habit, error) {
	existing, err := s.GetHabit(ctx, h.ID)
	if err != nil {
		return habit.Habit{}, err
	}

	h.OwnerID = existing.OwnerID
	h.CreatedAt = existing.CreatedAt
	h.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE app_habits
		SET name = $2, description = $3, active = $4, updated_at = $5
		WHERE id = $1
	`, h.ID, h.Name, h.Description, h.Active, h.UpdatedAt)
	if err != nil {
		return habit.Habit{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return habit.Habit{}, sql.ErrNoRows
	}
	return h, nil
}

func (s *Store) GetHabit(ctx context.Context, id string) (habit.Habit, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, description, active, created_at, updated_at
		FROM app_habits
		WHERE id = $1
	`, id)

	var h habit.Habit
	if err := row.Scan(&h.ID, &h.OwnerID, &h.Name, &h.Description, &h.Active, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return habit.Habit{}, err
	}
	return h, nil
}

func (s *Store) ListHabits(ctx context.Context, ownerID string, activeOnly bool) ([]habit.Habit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, description, active, created_at, updated_at
		FROM app_habits
		WHERE owner_id = $1 AND ($2 = false OR active = true)
		ORDER BY lower(name)
	`, ownerID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []habit.Habit
	for rows.Next() {
		var h habit.Habit
		if err := rows.Scan(&h.ID, &h.OwnerID, &h.Name, &h.Description, &h.Active, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

func (s *Store) DeleteHabit(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM app_habits WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- CheckInStore ------------------------------------------------------------

func (s *Store) CreateCheckIn(ctx context.Context, ci checkin.CheckIn) (checkin.CheckIn, bool, error) {
	if ci.HabitID == "" {
		return checkin.CheckIn{}, false, errors.New("habit_id required")
	}
	if ci.ID == "" {
		ci.ID = uuid.NewString()
	}
	ci.Date = checkin.DateOf(ci.Date)
	ci.CreatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO app_checkins (id, habit_id, date, minutes_spent, xp_awarded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (habit_id, date) DO NOTHING
	`, ci.ID, ci.HabitID, ci.Date, ci.MinutesSpent, ci.XPAwarded, ci.CreatedAt)
	if err != nil {
		return checkin.CheckIn{}, false, err
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return ci, true, nil
	}

	existing, err := s.getCheckInByDate(ctx, ci.HabitID, ci.Date)
	if err != nil {
		return checkin.CheckIn{}, false, err
	}
	return existing, false, nil
}

func (s *Store) getCheckInByDate(ctx context.Context, habitID string, date time.Time) (checkin.CheckIn, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, habit_id, date, minutes_spent, xp_awarded, created_at
		FROM app_checkins
		WHERE habit_id = $1 AND date = $2
	`, habitID, date)
	return scanCheckIn(row.Scan)
}

func (s *Store) ListCheckIns(ctx context.Context, habitID string) ([]checkin.CheckIn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, habit_id, date, minutes_spent, xp_awarded, created_at
		FROM app_checkins
		WHERE habit_id = $1
		ORDER BY date DESC, created_at DESC
	`, habitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []checkin.CheckIn
	for rows.Next() {
		ci, err := scanCheckIn(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, ci)
	}
	return result, rows.Err()
}

func scanCheckIn(scan func(dest ...any) error) (checkin.CheckIn, error) {
	var ci checkin.CheckIn
	if err := scan(&ci.ID, &ci.HabitID, &ci.Date, &ci.MinutesSpent, &ci.XPAwarded, &ci.CreatedAt); err != nil {
		return checkin.CheckIn{}, err
	}
	ci.Date = checkin.DateOf(ci.Date)
	return ci, nil
}

func (s *Store) ListCheckInDates(ctx context.Context, habitID string) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT date
		FROM app_checkins
		WHERE habit_id = $1
		ORDER BY date
	`, habitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, checkin.DateOf(d))
	}
	return dates, rows.Err()
}

func (s *Store) CountCheckInsForOwner(ctx context.Context, ownerID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM app_checkins c
		JOIN app_habits h ON h.id = c.habit_id
		WHERE h.owner_id = $1
	`, ownerID).Scan(&total)
	return total, err
}

func (s *Store) SumMinutesForOwner(ctx context.Context, ownerID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(c.minutes_spent), 0)
		FROM app_checkins c
		JOIN app_habits h ON h.id = c.habit_id
		WHERE h.owner_id = $1
	`, ownerID).Scan(&total)
	return total, err
}

// --- ProfileStore ------------------------------------------------------------

func (s *Store) GetProfile(ctx context.Context, userID string) (profile.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, total_xp, level, total_minutes_logged, achievements, created_at, updated_at
		FROM app_profiles
		WHERE user_id = $1
	`, userID)
	return scanProfile(row.Scan)
}

func (s *Store) EnsureProfile(ctx context.Context, userID string) (profile.Profile, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_profiles (user_id, total_xp, level, total_minutes_logged, achievements, created_at, updated_at)
		VALUES ($1, 0, 1, 0, '{}', $2, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, now)
	if err != nil {
		return profile.Profile{}, err
	}
	return s.GetProfile(ctx, userID)
}

// MutateProfile loads the profile with a row-level lock, applies fn and
// writes the result back in the same transaction.
func (s *Store) MutateProfile(ctx context.Context, userID string, fn func(*profile.Profile) error) (profile.Profile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return profile.Profile{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO app_profiles (user_id, total_xp, level, total_minutes_logged, achievements, created_at, updated_at)
		VALUES ($1, 0, 1, 0, '{}', $2, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, now); err != nil {
		return profile.Profile{}, err
	}

	row := tx.QueryRowContext(ctx, `
		SELECT user_id, total_xp, level, total_minutes_logged, achievements, created_at, updated_at
		FROM app_profiles
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	p, err := scanProfile(row.Scan)
	if err != nil {
		return profile.Profile{}, err
	}

	if err := fn(&p); err != nil {
		return profile.Profile{}, err
	}
	p.UpdatedAt = time.Now().UTC()

	achievementsJSON, err := json.Marshal(encodeAchievements(p.Achievements))
	if err != nil {
		return profile.Profile{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE app_profiles
		SET total_xp = $2, level = $3, total_minutes_logged = $4, achievements = $5, updated_at = $6
		WHERE user_id = $1
	`, userID, p.TotalXP, p.Level, p.TotalMinutesLogged, achievementsJSON, p.UpdatedAt); err != nil {
		return profile.Profile{}, err
	}

	if err := tx.Commit(); err != nil {
		return profile.Profile{}, err
	}
	return p, nil
}

func scanProfile(scan func(dest ...any) error) (profile.Profile, error) {
	var (
		p               profile.Profile
		achievementsRaw []byte
	)
	if err := scan(&p.UserID, &p.TotalXP, &p.Level, &p.TotalMinutesLogged, &achievementsRaw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return profile.Profile{}, err
	}

	p.Achievements = make(map[string]time.Time)
	if len(achievementsRaw) > 0 {
		var encoded map[string]string
		if err := json.Unmarshal(achievementsRaw, &encoded); err != nil {
			return profile.Profile{}, fmt.Errorf("decode achievements: %w", err)
		}
		for code, stamp := range encoded {
			at, err := time.Parse(time.RFC3339Nano, stamp)
			if err != nil {
				return profile.Profile{}, fmt.Errorf("decode achievement %s: %w", code, err)
			}
			p.Achievements[code] = at.UTC()
		}
	}
	return p, nil
}

func encodeAchievements(achievements map[string]time.Time) map[string]string {
	encoded := make(map[string]string, len(achievements))
	for code, at := range achievements {
		encoded[code] = at.UTC().Format(time.RFC3339Nano)
	}
	return encoded
}
