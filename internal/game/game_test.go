package game_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Rails-18xx/Rails-sub009/internal/game"
	"github.com/Rails-18xx/Rails-sub009/internal/model"
	"github.com/Rails-18xx/Rails-sub009/internal/stockmarket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testGrid builds a 6x6 grid, prices rising rightward and falling downward.
// Row 2 carries start cells at 80, 90 and 100; the top-right cell ends the
// game.
func testGrid() [][]stockmarket.Cell {
	grid := make([][]stockmarket.Cell, 6)
	for r := range grid {
		grid[r] = make([]stockmarket.Cell, 6)
		for c := range grid[r] {
			grid[r][c] = stockmarket.Cell{Price: int64(100 - 10*r + 10*c)}
		}
	}
	grid[2][0].Start = true
	grid[2][1].Start = true
	grid[2][2].Start = true
	grid[0][5].EndsGame = true
	return grid
}

func testRules() game.Rules {
	return game.Rules{
		Sequence:                 game.SellBuySell,
		PoolShareLimit:           50,
		PlayerShareLimit:         60,
		TreasuryShareLimit:       50,
		CertLimit:                decimal.NewFromInt(11),
		NoSaleOfJustBought:       true,
		SeparateSalesAtSamePrice: true,
	}
}

// tenShare returns a standard 10-share company: ten 10% units, a 2-unit
// president certificate, floating at 50%.
func tenShare(id string) game.CompanyConfig {
	return game.CompanyConfig{Company: model.Company{
		ID:              id,
		Name:            id,
		ShareUnit:       10,
		TotalShares:     10,
		PresidentShares: 2,
		IPOPolicy:       model.IPOPar,
		FloatPercent:    50,
		CapitalShares:   10,
	}}
}

func newTestGame(t *testing.T, mutate func(*game.Config)) *game.Game {
	t.Helper()
	cfg := game.Config{
		Players: []model.Player{
			{ID: "alice", Name: "Alice"},
			{ID: "bob", Name: "Bob"},
			{ID: "carol", Name: "Carol"},
		},
		StartingCash: 1000,
		Companies:    []game.CompanyConfig{tenShare("prr"), tenShare("nyc")},
		Grid:         testGrid(),
		Rules:        testRules(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	g, err := game.New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	return g
}

func mustProcess(t *testing.T, g *game.Game, a game.Action) *game.Result {
	t.Helper()
	res, err := g.Process(a)
	if err != nil {
		t.Fatalf("process %s by %s: %v", a.Type, a.Player, err)
	}
	return res
}

func startCompany(t *testing.T, g *game.Game, player, company string, par int64) {
	t.Helper()
	mustProcess(t, g, game.Action{Type: game.ActionStart, Player: player, Company: company, Price: par})
}

func buyShare(t *testing.T, g *game.Game, player, company string, from model.HolderKey, shares int) {
	t.Helper()
	mustProcess(t, g, game.Action{Type: game.ActionBuy, Player: player, Company: company, From: from, Shares: shares})
}

func sellShares(t *testing.T, g *game.Game, player, company string, shares int) *game.Result {
	t.Helper()
	return mustProcess(t, g, game.Action{Type: game.ActionSell, Player: player, Company: company, Shares: shares})
}

func pass(t *testing.T, g *game.Game, player string) {
	t.Helper()
	mustProcess(t, g, game.Action{Type: game.ActionPass, Player: player})
}

func cashOf(g *game.Game, player string) int64 {
	return g.Ledger().Balance(model.PlayerKey(player))
}

func unitsOf(g *game.Game, holder model.HolderKey, company string) int {
	return g.Portfolios().SharesOf(holder, company)
}

// --- Company start ---

func TestStartCompany(t *testing.T) {
	g := newTestGame(t, nil)
	if _, err := g.StartStockRound("alice"); err != nil {
		t.Fatalf("start round: %v", err)
	}

	startCompany(t, g, "alice", "prr", 90)

	c, _ := g.Company("prr")
	if !c.Started || c.ParPrice != 90 {
		t.Errorf("expected started at par 90, got started=%v par=%d", c.Started, c.ParPrice)
	}
	if price, _ := g.Market().PriceOf("prr"); price != 90 {
		t.Errorf("expected market price 90, got %d", price)
	}
	if got := cashOf(g, "alice"); got != 1000-180 {
		t.Errorf("expected alice at 820, got %d", got)
	}
	if !g.Portfolios().HasPresidency(model.PlayerKey("alice"), "prr") {
		t.Error("alice should hold the presidency")
	}
	if err := g.Audit(); err != nil {
		t.Errorf("audit: %v", err)
	}
}

func TestStartCompany_InvalidPar(t *testing.T) {
	g := newTestGame(t, nil)
	g.StartStockRound("alice")

	_, err := g.Process(game.Action{Type: game.ActionStart, Player: "alice", Company: "prr", Price: 85})
	if !errors.Is(err, game.ErrInvalidPar) {
		t.Errorf("expected ErrInvalidPar, got %v", err)
	}
	c, _ := g.Company("prr")
	if c.Started {
		t.Error("rejected start must not mark the company started")
	}
}

func TestStartCompany_AlreadyStarted(t *testing.T) {
	g := newTestGame(t, nil)
	g.StartStockRound("alice")
	startCompany(t, g, "alice", "prr", 80)
	pass(t, g, "alice")

	_, err := g.Process(game.Action{Type: game.ActionStart, Player: "bob", Company: "prr", Price: 80})
	if !errors.Is(err, game.ErrCompanyStarted) {
		t.Errorf("expected ErrCompanyStarted, got %v", err)
	}
}

func TestStartCompany_FixedPricePolicy(t *testing.T) {
	g := newTestGame(t, func(cfg *game.Config) {
		cfg.Companies[1].Company.IPOPolicy = model.IPOFixed
		cfg.Companies[1].Company.FixedPrice = 100
	})
	g.StartStockRound("alice")

	_, err := g.Process(game.Action{Type: game.ActionStart, Player: "alice", Company: "nyc", Price: 80})
	if !errors.Is(err, game.ErrInvalidPar) {
		t.Errorf("expected ErrInvalidPar for wrong fixed price, got %v", err)
	}

	// Price 0 means "use the fixed price".
	mustProcess(t, g, game.Action{Type: game.ActionStart, Player: "alice", Company: "nyc", Price: 0})
	c, _ := g.Company("nyc")
	if c.ParPrice != 100 {
		t.Errorf("expected fixed par 100, got %d", c.ParPrice)
	}
}

// --- Buying ---

func TestBuy_FromIPOAtParAndFloat(t *testing.T) {
	g := newTestGame(t, nil)
	g.StartStockRound("alice")

	startCompany(t, g, "alice", "prr", 80)
	pass(t, g, "alice")
	buyShare(t, g, "bob", "prr", model.IPO, 1)
	pass(t, g, "bob")
	buyShare(t, g, "carol", "prr", model.IPO, 1)
	pass(t, g, "carol")

	c, _ := g.Company("prr")
	if c.Floated {
		t.Fatal("must not float at 40% sold")
	}

	buyShare(t, g, "alice", "prr", model.IPO, 1)

	if !c.Floated {
		t.Fatal("expected float at 50% sold")
	}
	if got := g.Ledger().Balance(model.TreasuryKey("prr")); got != 800 {
		t.Errorf("expected treasury capitalized with 800, got %d", got)
	}
	if got := cashOf(g, "bob"); got != 920 {
		t.Errorf("expected bob at 920, got %d", got)
	}
	if err := g.Audit(); err != nil {
		t.Errorf("audit: %v", err)
	}
}

func TestBuy_SecondPurchaseSameTurnRejected(t *testing.T) {
	g := newTestGame(t, nil)
	g.StartStockRound("alice")
	startCompany(t, g, "alice", "prr", 80)
	pass(t, g, "alice")
	buyShare(t, g, "bob", "prr", model.IPO, 1)

	_, err := g.Process(game.Action{Type: game.ActionBuy, Player: "bob", Company: "prr", From: model.IPO, Shares: 1})
	if !errors.Is(err, game.ErrAlreadyBought) {
		t.Errorf("expected ErrAlreadyBought, got %v", err)
	}
}

func TestBuy_UnstartedCompany(t *testing.T) {
	g := newTestGame(t, nil)
	g.StartStockRound("alice")

	_, err := g.Process(game.Action{Type: game.ActionBuy, Player: "alice", Company: "nyc", From: model.IPO, Shares: 1})
	if !errors.Is(err, game.ErrCompanyNotStarted) {
		t.Errorf("expected ErrCompanyNotStarted, got %v", err)
	}
}

func TestBuy_CannotAfford(t *testing.T) {
	g := newTestGame(t, func(cfg *game.Config) {
		cfg.StartingCash = 200
	})
	g.StartStockRound("alice")
	startCompany(t, g, "alice", "prr", 100)
	pass(t, g, "alice")
	pass(t, g, "bob")
	pass(t, g, "carol")

	// Alice spent her 200 on the president certificate.
	_, err := g.Process(game.Action{Type: game.ActionBuy, Player: "alice", Company: "prr", From: model.IPO, Shares: 1})
	if !errors.Is(err, game.ErrCannotAfford) {
		t.Errorf("expected ErrCannotAfford, got %v", err)
	}
	if got := cashOf(g, "alice"); got != 0 {
		t.Errorf("rejected buy changed cash: %d", got)
	}
}

func TestBuy_HoldLimit(t *testing.T) {
	g := newTestGame(t, func(cfg *game.Config) {
		cfg.Rules.PlayerShareLimit = 20 // two units of a 10% company
	})
	g.StartStockRound("alice")
	startCompany(t, g, "alice", "prr", 80)
	pass(t, g, "alice")
	buyShare(t, g, "bob", "prr", model.IPO, 1)
	pass(t, g, "bob")
	pass(t, g, "carol")
	pass(t, g, "alice")
	buyShare(t, g, "bob", "prr", model.IPO, 1)
	pass(t, g, "bob")
	pass(t, g, "carol")
	pass(t, g, "alice")

	_, err := g.Process(game.Action{Type: game.ActionBuy, Player: "bob", Company: "prr", From: model.IPO, Shares: 1})
	if !errors.Is(err, game.ErrHoldLimit) {
		t.Errorf("expected ErrHoldLimit, got %v", err)
	}
}

func TestBuy_CertLimit(t *testing.T) {
	g := newTestGame(t, func(cfg *game.Config) {
		cfg.Rules.CertLimit = decimal.NewFromInt(2)
	})
	g.StartStockRound("alice")
	startCompany(t, g, "alice", "prr", 80)
	pass(t, g, "alice")
	buyShare(t, g, "bob", "prr", model.IPO, 1)
	pass(t, g, "bob")
	pass(t, g, "carol")
	pass(t, g, "alice")
	buyShare(t, g, "bob", "prr", model.IPO, 1)
	pass(t, g, "bob")
	pass(t, g, "carol")
	pass(t, g, "alice")

	_, err := g.Process(game.Action{Type: game.ActionBuy, Player: "bob", Company: "prr", From: model.IPO, Shares: 1})
	if !errors.Is(err, game.ErrCertLimit) {
		t.Errorf("expected ErrCertLimit, got %v", err)
	}
}

func TestBuy_TriggersPresidencyTransfer(t *testing.T) {
	g := newTestGame(t, nil)
	g.StartStockRound("alice")
	startCompany(t, g, "alice", "prr", 80)
	pass(t, g, "alice")
	buyShare(t, g, "bob", "prr", model.IPO, 1)
	pass(t, g, "bob")
	pass(t, g, "carol")
	pass(t, g, "alice")
	buyShare(t, g, "bob", "prr", model.IPO, 1)
	pass(t, g, "bob")
	pass(t, g, "carol")
	pass(t, g, "alice")

	if !g.Portfolios().HasPresidency(model.PlayerKey("alice"), "prr") {
		t.Fatal("alice should still be president at 2 vs 2")
	}

	buyShare(t, g, "bob", "prr", model.IPO, 1)

	if !g.Portfolios().HasPresidency(model.PlayerKey("bob"), "prr") {
		t.Error("bob should take the presidency at 3 vs 2")
	}
	if got := unitsOf(g, model.PlayerKey("bob"), "prr"); got != 3 {
		t.Errorf("bob should hold 3 units, got %d", got)
	}
	if got := unitsOf(g, model.PlayerKey("alice"), "prr"); got != 2 {
		t.Errorf("alice should hold 2 units after the exchange, got %d", got)
	}
	if err := g.Audit(); err != nil {
		t.Errorf("audit: %v", err)
	}
}

// --- Turn discipline ---

func TestProcess_OutOfTurnRejected(t *testing.T) {
	g := newTestGame(t, nil)
	g.StartStockRound("alice")

	_, err := g.Process(game.Action{Type: game.ActionPass, Player: "bob"})
	if !errors.Is(err, game.ErrNotYourTurn) {
		t.Errorf("expected ErrNotYourTurn, got %v", err)
	}
}

func TestProcess_NoActiveRound(t *testing.T) {
	g := newTestGame(t, nil)
	_, err := g.Process(game.Action{Type: game.ActionPass, Player: "alice"})
	if !errors.Is(err, game.ErrNoActiveRound) {
		t.Errorf("expected ErrNoActiveRound, got %v", err)
	}
}

func TestProcess_UnknownPlayer(t *testing.T) {
	g := newTestGame(t, nil)
	g.StartStockRound("alice")
	_, err := g.Process(game.Action{Type: game.ActionPass, Player: "mallory"})
	if !errors.Is(err, game.ErrUnknownPlayer) {
		t.Errorf("expected ErrUnknownPlayer, got %v", err)
	}
}

// TestRejection_Idempotent verifies a rejected action changes nothing: the
// identical resubmission fails identically.
func TestRejection_Idempotent(t *testing.T) {
	g := newTestGame(t, nil)
	g.StartStockRound("alice")

	bad := game.Action{Type: game.ActionStart, Player: "alice", Company: "prr", Price: 85}
	_, err1 := g.Process(bad)
	_, err2 := g.Process(bad)
	if err1 == nil || err2 == nil {
		t.Fatal("expected both submissions rejected")
	}
	if !errors.Is(err2, game.ErrInvalidPar) {
		t.Errorf("second rejection differs: %v vs %v", err1, err2)
	}
	if err := g.Audit(); err != nil {
		t.Errorf("audit: %v", err)
	}
}
