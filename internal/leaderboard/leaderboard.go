// Package leaderboard maintains per-season kill and experience rankings
// in redis sorted sets, updated from display snapshots rather than the
// tick loop.
package leaderboard

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hodlwarz/arena/internal/cache"
)

type Entry struct {
	Address string  `json:"address"`
	Score   float64 `json:"score"`
	Rank    int64   `json:"rank"`
}

type Service struct {
	rdb *redis.Client
}

func NewService(rdb *redis.Client) *Service {
	return &Service{rdb: rdb}
}

// UpdateKills sets a combatant's kill count for the season.
func (s *Service) UpdateKills(ctx context.Context, seasonID, addr string, kills uint64) error {
	key := fmt.Sprintf(cache.KeyKillLeaderboard, seasonID)
	return s.rdb.ZAdd(ctx, key, redis.Z{Score: float64(kills), Member: addr}).Err()
}

// UpdateXP sets a combatant's experience for the season.
func (s *Service) UpdateXP(ctx context.Context, seasonID, addr string, xp uint64) error {
	key := fmt.Sprintf(cache.KeyXPLeaderboard, seasonID)
	return s.rdb.ZAdd(ctx, key, redis.Z{Score: float64(xp), Member: addr}).Err()
}

// TopKills returns the top N combatants by kills for a season.
func (s *Service) TopKills(ctx context.Context, seasonID string, count int64) ([]Entry, error) {
	return s.topFromSortedSet(ctx, fmt.Sprintf(cache.KeyKillLeaderboard, seasonID), count)
}

// TopXP returns the top N combatants by experience for a season.
func (s *Service) TopXP(ctx context.Context, seasonID string, count int64) ([]Entry, error) {
	return s.topFromSortedSet(ctx, fmt.Sprintf(cache.KeyXPLeaderboard, seasonID), count)
}

// CombatantRank returns one combatant's kill rank and score for a season.
func (s *Service) CombatantRank(ctx context.Context, seasonID, addr string) (*Entry, error) {
	key := fmt.Sprintf(cache.KeyKillLeaderboard, seasonID)

	rank, err := s.rdb.ZRevRank(ctx, key, addr).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	score, err := s.rdb.ZScore(ctx, key, addr).Result()
	if err != nil {
		return nil, err
	}

	return &Entry{Address: addr, Score: score, Rank: rank + 1}, nil
}

// ResetSeason removes leaderboard data for a given season.
func (s *Service) ResetSeason(ctx context.Context, seasonID string) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, fmt.Sprintf(cache.KeyKillLeaderboard, seasonID))
	pipe.Del(ctx, fmt.Sprintf(cache.KeyXPLeaderboard, seasonID))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Service) topFromSortedSet(ctx context.Context, key string, count int64) ([]Entry, error) {
	results, err := s.rdb.ZRevRangeWithScores(ctx, key, 0, count-1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(results))
	for i, z := range results {
		member, _ := z.Member.(string)
		entries = append(entries, Entry{
			Address: member,
			Score:   z.Score,
			Rank:    int64(i + 1),
		})
	}
	return entries, nil
}
