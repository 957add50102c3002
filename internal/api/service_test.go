package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Rails-18xx/Rails-sub009/internal/game"
	"github.com/Rails-18xx/Rails-sub009/internal/model"
	"github.com/Rails-18xx/Rails-sub009/internal/stockmarket"
	"github.com/Rails-18xx/Rails-sub009/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() game.Config {
	grid := make([][]stockmarket.Cell, 6)
	for r := range grid {
		grid[r] = make([]stockmarket.Cell, 6)
		for c := range grid[r] {
			grid[r][c] = stockmarket.Cell{Price: int64(100 - 10*r + 10*c)}
		}
	}
	grid[2][0].Start = true
	grid[2][1].Start = true

	return game.Config{
		ID: "game-1",
		Players: []model.Player{
			{ID: "alice", Name: "Alice"},
			{ID: "bob", Name: "Bob"},
			{ID: "carol", Name: "Carol"},
		},
		StartingCash: 1000,
		Companies: []game.CompanyConfig{{Company: model.Company{
			ID:              "prr",
			Name:            "PRR",
			ShareUnit:       10,
			TotalShares:     10,
			PresidentShares: 2,
			IPOPolicy:       model.IPOPar,
			FloatPercent:    50,
			CapitalShares:   10,
		}}},
		Grid: grid,
		Rules: game.Rules{
			Sequence:           game.SellBuySell,
			PoolShareLimit:     50,
			PlayerShareLimit:   60,
			TreasuryShareLimit: 50,
			CertLimit:          decimal.NewFromInt(11),
		},
	}
}

func newTestHandler(st store.Store) http.Handler {
	svc := NewService(st, nil, testLogger())
	r := chi.NewRouter()
	svc.Routes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// createGame posts the standard config and starts a stock round with alice.
func createGame(t *testing.T, h http.Handler) {
	t.Helper()
	if rec := doJSON(t, h, http.MethodPost, "/games", testConfig()); rec.Code != http.StatusCreated {
		t.Fatalf("create game: status %d: %s", rec.Code, rec.Body)
	}
	round := StartRoundRequest{Kind: game.StockRound, Player: "alice"}
	if rec := doJSON(t, h, http.MethodPost, "/games/game-1/rounds", round); rec.Code != http.StatusCreated {
		t.Fatalf("start round: status %d: %s", rec.Code, rec.Body)
	}
}

func TestCreateGame(t *testing.T) {
	h := newTestHandler(store.NewMemoryStore())

	rec := doJSON(t, h, http.MethodPost, "/games", testConfig())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	view := decode[GameView](t, rec)
	if view.ID != "game-1" || len(view.Players) != 3 || len(view.Companies) != 1 {
		t.Errorf("unexpected view: %+v", view)
	}
	if view.Players[0].Cash != 1000 {
		t.Errorf("expected starting cash 1000, got %d", view.Players[0].Cash)
	}
}

func TestCreateGame_InvalidBody(t *testing.T) {
	h := newTestHandler(store.NewMemoryStore())
	req := httptest.NewRequest(http.MethodPost, "/games", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetGame_NotFound(t *testing.T) {
	h := newTestHandler(store.NewMemoryStore())
	if rec := doJSON(t, h, http.MethodGet, "/games/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListGames(t *testing.T) {
	h := newTestHandler(store.NewMemoryStore())
	createGame(t, h)

	rec := doJSON(t, h, http.MethodGet, "/games", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	summaries := decode[[]store.GameSummary](t, rec)
	if len(summaries) != 1 || summaries[0].ID != "game-1" {
		t.Errorf("unexpected summaries: %+v", summaries)
	}
}

func TestSubmitAction_StartCompany(t *testing.T) {
	h := newTestHandler(store.NewMemoryStore())
	createGame(t, h)

	a := game.Action{Type: game.ActionStart, Player: "alice", Company: "prr", Price: 80}
	rec := doJSON(t, h, http.MethodPost, "/games/game-1/actions", a)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	res := decode[game.Result](t, rec)
	if res.ActionID == "" || len(res.Changes) == 0 {
		t.Errorf("expected an applied result with changes, got %+v", res)
	}

	rec = doJSON(t, h, http.MethodGet, "/games/game-1", nil)
	view := decode[GameView](t, rec)
	if !view.Companies[0].Started || view.Companies[0].Price != 80 {
		t.Errorf("expected prr started at 80, got %+v", view.Companies[0])
	}
}

func TestSubmitAction_RejectionStatuses(t *testing.T) {
	h := newTestHandler(store.NewMemoryStore())
	createGame(t, h)

	cases := []struct {
		name   string
		action game.Action
		status int
	}{
		{"bad par", game.Action{Type: game.ActionStart, Player: "alice", Company: "prr", Price: 85}, http.StatusBadRequest},
		{"out of turn", game.Action{Type: game.ActionPass, Player: "carol"}, http.StatusConflict},
		{"unknown player", game.Action{Type: game.ActionPass, Player: "mallory"}, http.StatusNotFound},
		{"unknown company", game.Action{Type: game.ActionBuy, Player: "alice", Company: "ghost", From: model.IPO, Shares: 1}, http.StatusNotFound},
	}
	for _, c := range cases {
		rec := doJSON(t, h, http.MethodPost, "/games/game-1/actions", c.action)
		if rec.Code != c.status {
			t.Errorf("%s: expected %d, got %d: %s", c.name, c.status, rec.Code, rec.Body)
		}
	}
}

func TestLegalActionsEndpoint(t *testing.T) {
	h := newTestHandler(store.NewMemoryStore())
	createGame(t, h)

	rec := doJSON(t, h, http.MethodGet, "/games/game-1/legal", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	la := decode[game.LegalActions](t, rec)
	if la.Player != "alice" || len(la.Starts) == 0 {
		t.Errorf("expected alice's start menu, got %+v", la)
	}
}

func TestActionLogRecordsResults(t *testing.T) {
	h := newTestHandler(store.NewMemoryStore())
	createGame(t, h)

	doJSON(t, h, http.MethodPost, "/games/game-1/actions",
		game.Action{Type: game.ActionStart, Player: "alice", Company: "prr", Price: 80})
	doJSON(t, h, http.MethodPost, "/games/game-1/actions",
		game.Action{Type: game.ActionPass, Player: "alice"})

	rec := doJSON(t, h, http.MethodGet, "/games/game-1/log", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	results := decode[[]game.Result](t, rec)
	if len(results) != 2 {
		t.Fatalf("expected 2 logged actions, got %d", len(results))
	}
	if results[0].Action.Type != game.ActionStart {
		t.Errorf("expected the start action first, got %+v", results[0].Action)
	}
}

func TestDeleteGame(t *testing.T) {
	h := newTestHandler(store.NewMemoryStore())
	createGame(t, h)

	if rec := doJSON(t, h, http.MethodDelete, "/games/game-1", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/games/game-1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestGetPlayer(t *testing.T) {
	h := newTestHandler(store.NewMemoryStore())
	createGame(t, h)

	rec := doJSON(t, h, http.MethodGet, "/games/game-1/players/alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	pv := decode[PlayerView](t, rec)
	if pv.ID != "alice" || pv.Cash != 1000 {
		t.Errorf("unexpected player view: %+v", pv)
	}

	if rec := doJSON(t, h, http.MethodGet, "/games/game-1/players/mallory", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown player, got %d", rec.Code)
	}
}

// A second service instance sharing the store must pick the game up from its
// persisted snapshot, mid-round state included.
func TestGameRestoredFromStore(t *testing.T) {
	st := store.NewMemoryStore()
	h1 := newTestHandler(st)
	createGame(t, h1)
	doJSON(t, h1, http.MethodPost, "/games/game-1/actions",
		game.Action{Type: game.ActionStart, Player: "alice", Company: "prr", Price: 80})

	h2 := newTestHandler(st)
	rec := doJSON(t, h2, http.MethodGet, "/games/game-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from the restored game, got %d: %s", rec.Code, rec.Body)
	}
	view := decode[GameView](t, rec)
	if !view.Companies[0].Started {
		t.Error("restored game lost the started company")
	}
	if view.Round == nil || view.Round.Kind != game.StockRound {
		t.Errorf("restored game lost the round in progress: %+v", view.Round)
	}

	rec = doJSON(t, h2, http.MethodGet, "/games/game-1/legal", nil)
	la := decode[game.LegalActions](t, rec)
	if la.Player != "alice" {
		t.Errorf("expected alice still to act on the restored game, got %s", la.Player)
	}
}
