// Package store defines the persistence interface for the trading engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Rails-18xx/Rails-sub009/internal/game"
)

// ErrNotFound is returned when a game ID is unknown to the store.
var ErrNotFound = errors.New("store: game not found")

// GameSummary is the list-view projection of a stored game.
type GameSummary struct {
	ID          string    `json:"id"`
	Players     int       `json:"players"`
	RoundNumber int       `json:"round_number"`
	GameOver    bool      `json:"game_over"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is the persistence interface. Games persist as full snapshots;
// applied actions append to an immutable per-game log.
type Store interface {
	// SaveGame persists a snapshot, replacing any previous one for the ID.
	SaveGame(ctx context.Context, snap *game.Snapshot) error

	// GetGame retrieves the latest snapshot of a game.
	GetGame(ctx context.Context, id string) (*game.Snapshot, error)

	// ListGames returns summaries of all stored games.
	ListGames(ctx context.Context) ([]GameSummary, error)

	// DeleteGame removes a game and its action log.
	DeleteGame(ctx context.Context, id string) error

	// AppendResult appends an applied action's record to the game's log.
	AppendResult(ctx context.Context, gameID string, res *game.Result) error

	// GetResults returns a game's applied actions in order.
	GetResults(ctx context.Context, gameID string) ([]game.Result, error)
}
