package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

const (
	KeyArenaSnapshot   = "arena:snapshot"
	KeyKillLeaderboard = "leaderboard:kills:season:%s"
	KeyXPLeaderboard   = "leaderboard:xp:season:%s"
)

// Snapshots caches the latest display snapshot so HTTP consumers and
// restarted processes read a recent world without touching the tick loop.
type Snapshots struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSnapshots(rdb *redis.Client, ttl time.Duration) *Snapshots {
	return &Snapshots{rdb: rdb, ttl: ttl}
}

func (s *Snapshots) Store(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.rdb.Set(ctx, KeyArenaSnapshot, data, s.ttl).Err()
}

// Load unmarshals the cached snapshot into dst; reports false when no
// snapshot is cached.
func (s *Snapshots) Load(ctx context.Context, dst any) (bool, error) {
	data, err := s.rdb.Get(ctx, KeyArenaSnapshot).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return true, nil
}

func (s *Snapshots) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, KeyArenaSnapshot).Err()
}
