package habit

import "time"

// Habit is a user-owned recurring activity. Names are unique per owner.
type Habit struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Stats carries the derived figures for a habit. All values are computed over
// distinct civil dates in UTC.
type Stats struct {
	TotalCheckIns  int  `json:"total_checkins"`
	CheckedInToday bool `json:"checked_in_today"`
	Last7DaysCount int  `json:"last_7_days_count"`
	CurrentStreak  int  `json:"current_streak"`
	BestStreak     int  `json:"best_streak"`
}

// WithStats bundles a habit with its derived stats for API responses.
type WithStats struct {
	Habit
	Stats Stats `json:"stats"`
}
