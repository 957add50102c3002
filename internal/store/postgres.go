package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rails-18xx/Rails-sub009/internal/game"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Snapshots and action records are stored as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InitSchema creates the tables if they do not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS games (
			id           TEXT PRIMARY KEY,
			snapshot     JSONB NOT NULL,
			players      INT NOT NULL,
			round_number INT NOT NULL,
			game_over    BOOLEAN NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS action_log (
			seq        BIGSERIAL PRIMARY KEY,
			game_id    TEXT NOT NULL,
			action_id  TEXT NOT NULL,
			result     JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS action_log_game_idx ON action_log (game_id, seq);
	`)
	return err
}

func (s *PostgresStore) SaveGame(ctx context.Context, snap *game.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO games (id, snapshot, players, round_number, game_over, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET snapshot = EXCLUDED.snapshot,
		     players = EXCLUDED.players,
		     round_number = EXCLUDED.round_number,
		     game_over = EXCLUDED.game_over,
		     updated_at = EXCLUDED.updated_at`,
		snap.ID, data, len(snap.Players), snap.RoundNumber, snap.GameOver, time.Now().UTC(),
	)
	return err
}

func (s *PostgresStore) GetGame(ctx context.Context, id string) (*game.Snapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM games WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get game %s: %w", id, err)
	}
	var snap game.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *PostgresStore) ListGames(ctx context.Context) ([]GameSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, players, round_number, game_over, updated_at
		 FROM games ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []GameSummary
	for rows.Next() {
		var g GameSummary
		if err := rows.Scan(&g.ID, &g.Players, &g.RoundNumber, &g.GameOver, &g.UpdatedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, g)
	}
	return summaries, rows.Err()
}

func (s *PostgresStore) DeleteGame(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM games WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM action_log WHERE game_id = $1`, id)
	return err
}

func (s *PostgresStore) AppendResult(ctx context.Context, gameID string, res *game.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO action_log (game_id, action_id, result, created_at)
		 VALUES ($1, $2, $3, $4)`,
		gameID, res.ActionID, data, time.Now().UTC(),
	)
	return err
}

func (s *PostgresStore) GetResults(ctx context.Context, gameID string) ([]game.Result, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT result FROM action_log WHERE game_id = $1 ORDER BY seq`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []game.Result
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r game.Result
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
