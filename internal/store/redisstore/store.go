// Package redisstore caches finished recipe documents so repeated requests
// for the same tier+dish skip the slow external generation round trip.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartchef/smartchef/internal/recipemd"
)

const recipeTTL = 24 * time.Hour

type Store struct {
	client *redis.Client
}

func NewStore(addr, password string, db int) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func recipeKey(tier recipemd.Tier, dish string) string {
	return fmt.Sprintf("recipe:%s:%s", tier, strings.ToLower(strings.TrimSpace(dish)))
}

// Get returns a cached recipe. Misses and transport errors both read as
// "not cached"; the caller regenerates either way.
func (s *Store) Get(ctx context.Context, tier recipemd.Tier, dish string) (string, bool) {
	v, err := s.client.Get(ctx, recipeKey(tier, dish)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("recipe cache get failed", "error", err)
		}
		return "", false
	}
	return v, true
}

func (s *Store) Set(ctx context.Context, tier recipemd.Tier, dish, recipe string) {
	if err := s.client.Set(ctx, recipeKey(tier, dish), recipe, recipeTTL).Err(); err != nil {
		slog.Warn("recipe cache set failed", "error", err)
	}
}
