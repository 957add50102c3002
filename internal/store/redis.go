package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Rails-18xx/Rails-sub009/internal/game"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for snapshots. Writes go to the primary store and refresh the cache;
// reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) SaveGame(ctx context.Context, snap *game.Snapshot) error {
	if err := s.primary.SaveGame(ctx, snap); err != nil {
		return err
	}
	s.cacheGame(ctx, snap)
	return nil
}

func (s *CachedStore) GetGame(ctx context.Context, id string) (*game.Snapshot, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, gameKey(id)).Bytes()
	if err == nil {
		var snap game.Snapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	// Cache miss: read from primary.
	snap, err := s.primary.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheGame(ctx, snap)
	return snap, nil
}

func (s *CachedStore) DeleteGame(ctx context.Context, id string) error {
	if err := s.primary.DeleteGame(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, gameKey(id))
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListGames(ctx context.Context) ([]GameSummary, error) {
	return s.primary.ListGames(ctx)
}

func (s *CachedStore) AppendResult(ctx context.Context, gameID string, res *game.Result) error {
	return s.primary.AppendResult(ctx, gameID, res)
}

func (s *CachedStore) GetResults(ctx context.Context, gameID string) ([]game.Result, error) {
	return s.primary.GetResults(ctx, gameID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheGame(ctx context.Context, snap *game.Snapshot) {
	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, gameKey(snap.ID), data, s.ttl)
	}
}

func gameKey(id string) string { return fmt.Sprintf("game:%s", id) }
