package store

import (
	"context"
	"errors"
	"testing"

	"github.com/Rails-18xx/Rails-sub009/internal/game"
)

func testSnapshot(id string) *game.Snapshot {
	return &game.Snapshot{
		ID:          id,
		Currency:    "$",
		RoundNumber: 3,
		Holdings:    map[string][]string{"player:alice": {"prr-0"}},
		Cash:        map[string]int64{"player:alice": 820},
	}
}

func TestMemoryStore_SaveAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.SaveGame(ctx, testSnapshot("g1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, err := s.GetGame(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.ID != "g1" || snap.RoundNumber != 3 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.Cash["player:alice"] != 820 {
		t.Errorf("expected cash 820, got %d", snap.Cash["player:alice"])
	}
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetGame(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// Stored snapshots must not alias the caller's maps; a later mutation of the
// saved value must not leak into what the store returns.
func TestMemoryStore_SnapshotDoesNotAliasCaller(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	snap := testSnapshot("g1")
	s.SaveGame(ctx, snap)
	snap.Cash["player:alice"] = 0

	got, err := s.GetGame(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Cash["player:alice"] != 820 {
		t.Errorf("stored state aliased the live snapshot: cash %d", got.Cash["player:alice"])
	}
}

func TestMemoryStore_List(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.SaveGame(ctx, testSnapshot("g1"))
	s.SaveGame(ctx, testSnapshot("g2"))

	summaries, err := s.ListGames(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 2 {
		t.Errorf("expected 2 summaries, got %d", len(summaries))
	}
	for _, sum := range summaries {
		if sum.RoundNumber != 3 {
			t.Errorf("summary %s carries round %d, want 3", sum.ID, sum.RoundNumber)
		}
		if sum.UpdatedAt.IsZero() {
			t.Errorf("summary %s has no update time", sum.ID)
		}
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.SaveGame(ctx, testSnapshot("g1"))

	if err := s.DeleteGame(ctx, "g1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetGame(ctx, "g1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteGame(ctx, "g1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a second delete, got %v", err)
	}
}

func TestMemoryStore_ActionLog(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"a1", "a2"} {
		res := &game.Result{ActionID: id, Action: game.Action{Type: game.ActionPass, Player: "alice"}}
		if err := s.AppendResult(ctx, "g1", res); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	results, err := s.GetResults(ctx, "g1")
	if err != nil {
		t.Fatalf("get results: %v", err)
	}
	if len(results) != 2 || results[0].ActionID != "a1" || results[1].ActionID != "a2" {
		t.Errorf("expected [a1 a2] in order, got %+v", results)
	}

	if got, err := s.GetResults(ctx, "empty"); err != nil || len(got) != 0 {
		t.Errorf("expected empty log, got %v (%v)", got, err)
	}
}
