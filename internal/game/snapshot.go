package game

import (
	"fmt"
	"log/slog"

	"github.com/Rails-18xx/Rails-sub009/internal/ledger"
	"github.com/Rails-18xx/Rails-sub009/internal/model"
	"github.com/Rails-18xx/Rails-sub009/internal/portfolio"
	"github.com/Rails-18xx/Rails-sub009/internal/stockmarket"
)

// Snapshot is the complete serializable game state: setup data, every
// holder's certificates and cash, token positions, and the round in progress.
// Holder keys are serialized in their string form.
type Snapshot struct {
	ID       string `json:"id"`
	Rules    Rules  `json:"rules"`
	Currency string `json:"currency"`

	Players      []model.Player          `json:"players"`
	Companies    []model.Company         `json:"companies"`
	Certificates []model.Certificate     `json:"certificates"`
	Specials     []model.SpecialProperty `json:"specials,omitempty"`

	Holdings map[string][]string `json:"holdings"`
	Cash     map[string]int64    `json:"cash"`

	Grid          [][]stockmarket.Cell            `json:"grid"`
	UpOrDownRight bool                            `json:"up_or_down_right"`
	Tokens        map[string]stockmarket.Position `json:"tokens"`

	Round       *Round `json:"round,omitempty"`
	RoundNumber int    `json:"round_number"`
	GameOver    bool   `json:"game_over"`
}

// Snapshot captures the full game state for persistence.
func (g *Game) Snapshot() (*Snapshot, error) {
	s := &Snapshot{
		ID:            g.ID,
		Rules:         g.rules,
		Currency:      g.ledger.Symbol(),
		Grid:          g.market.Grid(),
		UpOrDownRight: g.market.UpOrDownRight(),
		Tokens:        make(map[string]stockmarket.Position),
		Holdings:      make(map[string][]string),
		Cash:          make(map[string]int64),
		Round:         g.round,
		RoundNumber:   g.roundNumber,
		GameOver:      g.gameOver,
	}

	holders := []model.HolderKey{model.IPO, model.Pool, model.Unavailable, model.ScrapHeap}
	for _, p := range g.players {
		s.Players = append(s.Players, *p)
		holders = append(holders, model.PlayerKey(p.ID))
	}
	for _, cid := range g.companyOrder {
		s.Companies = append(s.Companies, *g.companies[cid])
		s.Certificates = append(s.Certificates, g.registry.Company(cid)...)
		holders = append(holders, model.TreasuryKey(cid))
		if pos, ok := g.market.PositionOf(cid); ok {
			s.Tokens[cid] = pos
		}
	}
	for _, sp := range g.specials {
		s.Specials = append(s.Specials, *sp)
	}

	for _, h := range holders {
		certs, err := g.portfolios.Certificates(h)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(certs))
		for _, c := range certs {
			ids = append(ids, c.ID)
		}
		s.Holdings[h.String()] = ids
		if !h.IsBankArea() {
			s.Cash[h.String()] = g.ledger.Balance(h)
		}
	}
	return s, nil
}

// RestoreGame rebuilds a game from a snapshot and audits the result before
// returning it.
func RestoreGame(s *Snapshot, logger *slog.Logger) (*Game, error) {
	if logger == nil {
		logger = slog.Default()
	}
	market, err := stockmarket.New(s.Grid, s.UpOrDownRight)
	if err != nil {
		return nil, err
	}
	for cid, pos := range s.Tokens {
		if err := market.MoveToken(cid, pos); err != nil {
			return nil, fmt.Errorf("restoring token of %s: %w", cid, err)
		}
	}

	registry := model.NewRegistry()
	for _, cert := range s.Certificates {
		if err := registry.Add(cert); err != nil {
			return nil, err
		}
	}
	portfolios := portfolio.NewSet(registry)

	g := &Game{
		ID:          s.ID,
		log:         logger.With("game", s.ID),
		rules:       s.Rules,
		registry:    registry,
		portfolios:  portfolios,
		ledger:      ledger.New(portfolios, s.Currency),
		market:      market,
		playerByID:  make(map[string]*model.Player),
		companies:   make(map[string]*model.Company),
		round:       s.Round,
		roundNumber: s.RoundNumber,
		gameOver:    s.GameOver,
	}
	for i := range s.Players {
		p := s.Players[i]
		g.players = append(g.players, &p)
		g.playerByID[p.ID] = &p
		if _, err := portfolios.Create(model.PlayerKey(p.ID)); err != nil {
			return nil, err
		}
	}
	for i := range s.Companies {
		c := s.Companies[i]
		g.companies[c.ID] = &c
		g.companyOrder = append(g.companyOrder, c.ID)
		if _, err := portfolios.Create(model.TreasuryKey(c.ID)); err != nil {
			return nil, err
		}
	}
	for i := range s.Specials {
		sp := s.Specials[i]
		g.specials = append(g.specials, &sp)
	}

	// The round's empty maps are omitted from the serialized form and come
	// back nil; they must be writable again before the next action.
	if r := g.round; r != nil {
		if r.BoughtCerts == nil {
			r.BoughtCerts = make(map[string]bool)
		}
		if r.SoldCompanies == nil {
			r.SoldCompanies = make(map[string]map[string]bool)
		}
		if r.SellPrices == nil {
			r.SellPrices = make(map[string]int64)
		}
		if r.PlayerState == nil {
			r.PlayerState = make(map[string]*playerRoundState)
		}
		for _, p := range g.players {
			if r.PlayerState[p.ID] == nil {
				r.PlayerState[p.ID] = &playerRoundState{}
			}
		}
	}

	for holder, certIDs := range s.Holdings {
		key, err := model.ParseHolderKey(holder)
		if err != nil {
			return nil, err
		}
		for _, id := range certIDs {
			if err := portfolios.Place(id, key); err != nil {
				return nil, fmt.Errorf("restoring %s to %s: %w", id, holder, err)
			}
		}
	}
	for holder, amount := range s.Cash {
		key, err := model.ParseHolderKey(holder)
		if err != nil {
			return nil, err
		}
		if err := portfolios.SetCash(key, amount); err != nil {
			return nil, err
		}
	}

	if err := g.Audit(); err != nil {
		return nil, err
	}
	return g, nil
}
