package checkin

import "time"

// CheckIn records that a habit was performed on a given civil date. At most
// one check-in exists per habit per date. XPAwarded persists the reward that
// was granted when the check-in was first recorded.
type CheckIn struct {
	ID           string    `json:"id"`
	HabitID      string    `json:"habit_id"`
	Date         time.Time `json:"date"`
	MinutesSpent int       `json:"minutes_spent,omitempty"`
	XPAwarded    int       `json:"xp_awarded"`
	CreatedAt    time.Time `json:"created_at"`
}

// DateOf truncates t to its civil date in UTC (midnight).
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the current civil date in UTC.
func Today() time.Time {
	return DateOf(time.Now())
}
