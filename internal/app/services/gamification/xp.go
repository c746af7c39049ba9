package gamification

import "github.com/habitloop/habitloop/internal/app/domain/profile"

const (
	baseXP          = 10
	streakBonusCap  = 20
	minutesBonusCap = 30
)

// LevelFromXP maps cumulative XP to a level. Advancing from level L costs
// 100*L XP, so the cumulative thresholds are 0, 100, 300, 600, ...
func LevelFromXP(totalXP int) int {
	level := 1
	remaining := totalXP
	for {
		cost := 100 * level
		if remaining < cost {
			return level
		}
		remaining -= cost
		level++
	}
}

// ComputeXPAward itemizes the XP for a check-in. currentStreak is the streak
// the check-in produces; minutesSpent earns +1 XP per 10 minutes.
func ComputeXPAward(currentStreak, minutesSpent int) profile.XPBreakdown {
	streakBonus := 2 * currentStreak
	if streakBonus < 0 {
		streakBonus = 0
	}
	if streakBonus > streakBonusCap {
		streakBonus = streakBonusCap
	}

	minutesBonus := 0
	if minutesSpent > 0 {
		minutesBonus = minutesSpent / 10
		if minutesBonus > minutesBonusCap {
			minutesBonus = minutesBonusCap
		}
	}

	return profile.XPBreakdown{
		Base:         baseXP,
		StreakBonus:  streakBonus,
		MinutesBonus: minutesBonus,
	}
}
