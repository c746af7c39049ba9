package profile

import "time"

// Achievement codes awarded by the gamification service.
const (
	AchievementFirstStep = "first_step"
	AchievementOnFire    = "on_fire"
	AchievementTenHours  = "ten_hours"
)

// Thresholds for achievement unlocks.
const (
	OnFireStreak    = 7
	TenHoursMinutes = 600
)

// Profile accumulates a user's gamification state. Achievements maps
// achievement code to the time it was unlocked and is add-only.
type Profile struct {
	UserID             string               `json:"user_id"`
	TotalXP            int                  `json:"total_xp"`
	Level              int                  `json:"level"`
	TotalMinutesLogged int                  `json:"total_minutes_logged"`
	Achievements       map[string]time.Time `json:"achievements"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// Unlock records an achievement if it is not already present. It reports
// whether the profile changed.
func (p *Profile) Unlock(code string, at time.Time) bool {
	if p.Achievements == nil {
		p.Achievements = make(map[string]time.Time)
	}
	if _, ok := p.Achievements[code]; ok {
		return false
	}
	p.Achievements[code] = at.UTC()
	return true
}

// XPBreakdown itemizes the XP granted for a single check-in.
type XPBreakdown struct {
	Base         int `json:"base"`
	StreakBonus  int `json:"streak_bonus"`
	MinutesBonus int `json:"minutes_bonus"`
}

// Total is the XP actually credited.
func (b XPBreakdown) Total() int {
	return b.Base + b.StreakBonus + b.MinutesBonus
}

// LeaderboardEntry is a ranked row of the XP leaderboard.
type LeaderboardEntry struct {
	Rank     int    `json:"rank" db:"-"`
	UserID   string `json:"user_id" db:"user_id"`
	Username string `json:"username" db:"username"`
	TotalXP  int    `json:"total_xp" db:"total_xp"`
	Level    int    `json:"level" db:"level"`
}
