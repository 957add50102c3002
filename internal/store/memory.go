package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Rails-18xx/Rails-sub009/internal/game"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Snapshots are kept in marshaled form so stored state never
// aliases a live game's maps.
type MemoryStore struct {
	mu      sync.RWMutex
	games   map[string][]byte
	meta    map[string]GameSummary
	results map[string][][]byte
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:   make(map[string][]byte),
		meta:    make(map[string]GameSummary),
		results: make(map[string][][]byte),
	}
}

func (s *MemoryStore) SaveGame(_ context.Context, snap *game.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[snap.ID] = data
	s.meta[snap.ID] = GameSummary{
		ID:          snap.ID,
		Players:     len(snap.Players),
		RoundNumber: snap.RoundNumber,
		GameOver:    snap.GameOver,
		UpdatedAt:   time.Now().UTC(),
	}
	return nil
}

func (s *MemoryStore) GetGame(_ context.Context, id string) (*game.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	var snap game.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *MemoryStore) ListGames(_ context.Context) ([]GameSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]GameSummary, 0, len(s.meta))
	for _, m := range s.meta {
		summaries = append(summaries, m)
	}
	return summaries, nil
}

func (s *MemoryStore) DeleteGame(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[id]; !ok {
		return ErrNotFound
	}
	delete(s.games, id)
	delete(s.meta, id)
	delete(s.results, id)
	return nil
}

func (s *MemoryStore) AppendResult(_ context.Context, gameID string, res *game.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[gameID] = append(s.results[gameID], data)
	return nil
}

func (s *MemoryStore) GetResults(_ context.Context, gameID string) ([]game.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.results[gameID]
	results := make([]game.Result, 0, len(stored))
	for _, data := range stored {
		var r game.Result
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}
