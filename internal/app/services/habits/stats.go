package habits

import (
	"time"

	"github.com/habitloop/habitloop/internal/app/domain/checkin"
	"github.com/habitloop/habitloop/internal/app/domain/habit"
)

const day = 24 * time.Hour

// StatsForDates derives habit statistics from a set of check-in dates
// without touching storage. Used to compute the streak a check-in will
// produce before it is persisted.
func StatsForDates(dates []time.Time, today time.Time) habit.Stats {
	return computeStats(dates, today)
}

// computeStats derives all habit statistics from the habit's distinct
// check-in dates. Dates must be civil dates (UTC midnight); order does not
// matter.
func computeStats(dates []time.Time, today time.Time) habit.Stats {
	today = checkin.DateOf(today)

	set := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		set[checkin.DateOf(d)] = true
	}

	weekStart := today.Add(-6 * day)
	last7 := 0
	for d := range set {
		if !d.Before(weekStart) && !d.After(today) {
			last7++
		}
	}

	return habit.Stats{
		TotalCheckIns:  len(set),
		CheckedInToday: set[today],
		Last7DaysCount: last7,
		CurrentStreak:  currentStreak(set, today),
		BestStreak:     bestStreak(set),
	}
}

// currentStreak counts consecutive checked-in days ending today. A habit
// without a check-in today has a streak of zero.
func currentStreak(set map[time.Time]bool, today time.Time) int {
	streak := 0
	for d := today; set[d]; d = d.Add(-day) {
		streak++
	}
	return streak
}

// bestStreak finds the longest run of consecutive dates over all check-ins.
func bestStreak(set map[time.Time]bool) int {
	best := 0
	for d := range set {
		// Only count from the start of each run.
		if set[d.Add(-day)] {
			continue
		}
		length := 1
		for next := d.Add(day); set[next]; next = next.Add(day) {
			length++
		}
		if length > best {
			best = length
		}
	}
	return best
}
