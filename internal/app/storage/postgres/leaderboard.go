package postgres

import (
	"context"

	"github.com/habitloop/habitloop/internal/app/domain/profile"
)

const leaderboardQuery = `
	SELECT p.user_id, u.username, p.total_xp, p.level
	FROM app_profiles p
	JOIN app_users u ON u.id = p.user_id
	ORDER BY p.total_xp DESC, p.updated_at ASC, u.username ASC
	LIMIT $1 OFFSET $2
`

// ListLeaderboard returns profiles ranked by total XP. Ranks are absolute,
// offset included.
func (s *Store) ListLeaderboard(ctx context.Context, limit, offset int) ([]profile.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var entries []profile.LeaderboardEntry
	if err := s.dbx.SelectContext(ctx, &entries, leaderboardQuery, limit, offset); err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Rank = offset + i + 1
	}
	return entries, nil
}
