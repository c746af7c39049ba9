// Package leaderboard serves the ranked XP leaderboard with a short Redis
// cache in front of the store.
package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/habitloop/habitloop/internal/app/domain/profile"
	"github.com/habitloop/habitloop/internal/app/storage"
	"github.com/habitloop/habitloop/internal/platform/cache"
	"github.com/habitloop/habitloop/pkg/logger"
)

const (
	defaultLimit = 20
	maxLimit     = 100
	cacheTTL     = 30 * time.Second
)

// Service reads leaderboard pages. Rankings are eventually consistent: pages
// may lag writes by up to the cache TTL.
type Service struct {
	profiles storage.ProfileStore
	cache    *cache.Cache
	log      *logger.Logger
}

// New constructs a leaderboard service. A nil cache disables caching.
func New(profiles storage.ProfileStore, c *cache.Cache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("leaderboard")
	}
	return &Service{
		profiles: profiles,
		cache:    c,
		log:      log,
	}
}

// Top returns a page of the leaderboard ordered by total XP descending.
// Limit is clamped to [1, 100]; offset below zero is treated as zero.
func (s *Service) Top(ctx context.Context, limit, offset int) ([]profile.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}

	key := fmt.Sprintf("leaderboard:%d:%d", limit, offset)
	if data, err := s.cache.Get(ctx, key); err == nil {
		var entries []profile.LeaderboardEntry
		if err := json.Unmarshal(data, &entries); err == nil {
			return entries, nil
		}
		// Corrupt entry; fall through to the store.
		_ = s.cache.Delete(ctx, key)
	} else if !errors.Is(err, cache.ErrMiss) {
		s.log.WithError(err).Warn("leaderboard cache read failed")
	}

	entries, err := s.profiles.ListLeaderboard(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil {
		if err := s.cache.Set(ctx, key, data, cacheTTL); err != nil {
			s.log.WithError(err).Warn("leaderboard cache write failed")
		}
	}
	return entries, nil
}
