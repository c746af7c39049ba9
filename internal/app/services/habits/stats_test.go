package habits

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := computeStats(nil, date(2026, time.March, 10))
	if stats.TotalCheckIns != 0 || stats.CurrentStreak != 0 || stats.BestStreak != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
	if stats.CheckedInToday {
		t.Fatalf("expected CheckedInToday=false")
	}
}

func TestComputeStatsCurrentStreak(t *testing.T) {
	today := date(2026, time.March, 10)
	dates := []time.Time{
		date(2026, time.March, 8),
		date(2026, time.March, 9),
		date(2026, time.March, 10),
	}

	stats := computeStats(dates, today)
	if stats.CurrentStreak != 3 {
		t.Fatalf("expected streak 3, got %d", stats.CurrentStreak)
	}
	if !stats.CheckedInToday {
		t.Fatalf("expected CheckedInToday=true")
	}
}

func TestComputeStatsStreakBrokenWithoutToday(t *testing.T) {
	// A run ending yesterday does not count as a current streak.
	today := date(2026, time.March, 10)
	dates := []time.Time{
		date(2026, time.March, 7),
		date(2026, time.March, 8),
		date(2026, time.March, 9),
	}

	stats := computeStats(dates, today)
	if stats.CurrentStreak != 0 {
		t.Fatalf("expected streak 0, got %d", stats.CurrentStreak)
	}
	if stats.BestStreak != 3 {
		t.Fatalf("expected best streak 3, got %d", stats.BestStreak)
	}
}

func TestComputeStatsBestStreakAcrossGaps(t *testing.T) {
	today := date(2026, time.March, 20)
	dates := []time.Time{
		// Run of two.
		date(2026, time.March, 1),
		date(2026, time.March, 2),
		// Run of four.
		date(2026, time.March, 10),
		date(2026, time.March, 11),
		date(2026, time.March, 12),
		date(2026, time.March, 13),
		// Isolated day.
		date(2026, time.March, 18),
	}

	stats := computeStats(dates, today)
	if stats.BestStreak != 4 {
		t.Fatalf("expected best streak 4, got %d", stats.BestStreak)
	}
	if stats.TotalCheckIns != 7 {
		t.Fatalf("expected 7 check-ins, got %d", stats.TotalCheckIns)
	}
}

func TestComputeStatsLast7DaysWindow(t *testing.T) {
	today := date(2026, time.March, 10)
	dates := []time.Time{
		date(2026, time.March, 3),  // oldest day still inside the window
		date(2026, time.March, 4),  // inside
		date(2026, time.March, 10), // today, inside
		date(2026, time.March, 2),  // outside
	}

	stats := computeStats(dates, today)
	if stats.Last7DaysCount != 3 {
		t.Fatalf("expected 3 in window, got %d", stats.Last7DaysCount)
	}
}

func TestComputeStatsDeduplicatesAndTruncates(t *testing.T) {
	today := date(2026, time.March, 10)
	dates := []time.Time{
		time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC),
		time.Date(2026, time.March, 10, 23, 59, 0, 0, time.UTC),
	}

	stats := computeStats(dates, today)
	if stats.TotalCheckIns != 1 {
		t.Fatalf("expected deduplicated total 1, got %d", stats.TotalCheckIns)
	}
	if stats.CurrentStreak != 1 {
		t.Fatalf("expected streak 1, got %d", stats.CurrentStreak)
	}
}

func TestStatsForDatesIncludesProspectiveDay(t *testing.T) {
	today := date(2026, time.March, 10)
	existing := []time.Time{
		date(2026, time.March, 8),
		date(2026, time.March, 9),
	}

	stats := StatsForDates(append(existing, today), today)
	if stats.CurrentStreak != 3 {
		t.Fatalf("expected prospective streak 3, got %d", stats.CurrentStreak)
	}
}
