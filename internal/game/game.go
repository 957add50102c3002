// Package game implements the share-trading engine: the game root owning
// certificates, portfolios, companies and the market grid, plus the
// trading-round state machine with its stock-round, forced-sale and
// treasury-trading kinds.
//
// The engine is single-threaded and synchronous. Every action is validated to
// completion before any mutation begins; rejected actions leave no trace.
// Each applied mutation is emitted as a reversible Change record so an
// external log can provide undo without the engine knowing about it.
package game

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Rails-18xx/Rails-sub009/internal/ledger"
	"github.com/Rails-18xx/Rails-sub009/internal/model"
	"github.com/Rails-18xx/Rails-sub009/internal/portfolio"
	"github.com/Rails-18xx/Rails-sub009/internal/stockmarket"
)

// Sequence selects the per-turn ordering of sell and buy actions.
type Sequence string

const (
	// SellBuySell allows selling both before and after the turn's buy.
	SellBuySell Sequence = "sell_buy_sell"
	// SellBuy forbids selling once the turn's buy has happened.
	SellBuy Sequence = "sell_buy"
	// FreeOrder allows one sell batch and one buy in either order, but not
	// sell batches on both sides of the buy.
	FreeOrder Sequence = "free_order"
)

// Rules are the configuration inputs loaded externally and immutable for the
// round.
type Rules struct {
	Sequence Sequence `json:"sequence"`

	// PoolShareLimit is the pool's capacity per company, in percent.
	PoolShareLimit int `json:"pool_share_limit"`
	// PlayerShareLimit is a player's holding cap per company, in percent.
	PlayerShareLimit int `json:"player_share_limit"`
	// TreasuryShareLimit caps a company's holding of its own shares, in
	// percent.
	TreasuryShareLimit int `json:"treasury_share_limit"`
	// CertLimit is the per-player certificate-count limit; certificate
	// weights are fractional in some games, so the limit is decimal.
	CertLimit decimal.Decimal `json:"cert_limit"`

	NoSaleOfJustBought       bool `json:"no_sale_of_just_bought"`
	NoSaleInFirstRound       bool `json:"no_sale_in_first_round"`
	SeparateSalesAtSamePrice bool `json:"separate_sales_at_same_price"`
}

// CompanyConfig describes one company at setup time.
type CompanyConfig struct {
	Company model.Company `json:"company"`
	// CertShares optionally overrides the ordinary certificate sizes.
	// Empty means (TotalShares − PresidentShares) single-unit certificates.
	CertShares []int `json:"cert_shares,omitempty"`
	// CertWeights optionally overrides per-certificate limit weights,
	// indexed like the generated certificates (president first). Missing
	// entries default to 1.
	CertWeights []float64 `json:"cert_weights,omitempty"`
	// Reserved certificates start in the unavailable area instead of the
	// IPO; the count is taken from the tail of the ordinary certificates.
	Reserved int `json:"reserved,omitempty"`
}

// Config assembles a game. Loading from data files belongs to collaborators;
// the engine takes the already-parsed form.
type Config struct {
	ID             string                  `json:"id,omitempty"`
	Players        []model.Player          `json:"players"`
	StartingCash   int64                   `json:"starting_cash"`
	Companies      []CompanyConfig         `json:"companies"`
	Grid           [][]stockmarket.Cell    `json:"grid"`
	UpOrDownRight  bool                    `json:"up_or_down_right"`
	Rules          Rules                   `json:"rules"`
	CurrencySymbol string                  `json:"currency_symbol"`
	Specials       []model.SpecialProperty `json:"specials,omitempty"`
}

// Game is the state root: it owns the registry, all portfolios, the market
// grid and the current round, and is the only mutator of any of them.
type Game struct {
	ID string

	log        *slog.Logger
	rules      Rules
	registry   *model.Registry
	portfolios *portfolio.Set
	ledger     *ledger.Ledger
	market     *stockmarket.Market

	players      []*model.Player
	playerByID   map[string]*model.Player
	companies    map[string]*model.Company
	companyOrder []string
	specials     []*model.SpecialProperty

	round       *Round
	roundNumber int
	gameOver    bool
}

// New builds a game from its configuration. Certificates are created here,
// once, and never again.
func New(cfg Config, logger *slog.Logger) (*Game, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Players) < 2 {
		return nil, fmt.Errorf("need at least 2 players, got %d", len(cfg.Players))
	}
	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}
	market, err := stockmarket.New(cfg.Grid, cfg.UpOrDownRight)
	if err != nil {
		return nil, err
	}
	symbol := cfg.CurrencySymbol
	if symbol == "" {
		symbol = "$"
	}

	registry := model.NewRegistry()
	portfolios := portfolio.NewSet(registry)
	g := &Game{
		ID:         id,
		log:        logger.With("game", id),
		rules:      cfg.Rules,
		registry:   registry,
		portfolios: portfolios,
		ledger:     ledger.New(portfolios, symbol),
		market:     market,
		playerByID: make(map[string]*model.Player),
		companies:  make(map[string]*model.Company),
	}

	for i := range cfg.Players {
		p := cfg.Players[i]
		if _, ok := g.playerByID[p.ID]; ok {
			return nil, fmt.Errorf("duplicate player %s", p.ID)
		}
		g.players = append(g.players, &p)
		g.playerByID[p.ID] = &p
		if _, err := portfolios.Create(model.PlayerKey(p.ID)); err != nil {
			return nil, err
		}
		if err := portfolios.SetCash(model.PlayerKey(p.ID), cfg.StartingCash); err != nil {
			return nil, err
		}
	}

	for i := range cfg.Companies {
		if err := g.addCompany(cfg.Companies[i]); err != nil {
			return nil, err
		}
	}

	for i := range cfg.Specials {
		sp := cfg.Specials[i]
		if _, ok := g.playerByID[sp.Player]; !ok {
			return nil, fmt.Errorf("special %s names unknown player %s", sp.ID, sp.Player)
		}
		g.specials = append(g.specials, &sp)
	}

	return g, nil
}

func (g *Game) addCompany(cc CompanyConfig) error {
	c := cc.Company
	if _, ok := g.companies[c.ID]; ok {
		return fmt.Errorf("duplicate company %s", c.ID)
	}
	if c.ShareUnit <= 0 || c.TotalShares <= 0 || c.PresidentShares <= 0 {
		return fmt.Errorf("company %s has invalid share layout", c.ID)
	}
	ordinary := cc.CertShares
	if ordinary == nil {
		for i := 0; i < c.TotalShares-c.PresidentShares; i++ {
			ordinary = append(ordinary, 1)
		}
	}
	total := c.PresidentShares
	for _, sz := range ordinary {
		total += sz
	}
	if total != c.TotalShares {
		return fmt.Errorf("company %s certificates sum to %d units, want %d", c.ID, total, c.TotalShares)
	}
	if _, err := g.portfolios.Create(model.TreasuryKey(c.ID)); err != nil {
		return err
	}

	weight := func(i int) decimal.Decimal {
		if i < len(cc.CertWeights) {
			return decimal.NewFromFloat(cc.CertWeights[i])
		}
		return decimal.NewFromInt(1)
	}
	certs := []model.Certificate{{
		ID:                 model.CertID(c.ID, 0),
		Company:            c.ID,
		Shares:             c.PresidentShares,
		President:          true,
		Weight:             weight(0),
		InitiallyAvailable: true,
	}}
	for i, sz := range ordinary {
		certs = append(certs, model.Certificate{
			ID:                 model.CertID(c.ID, i+1),
			Company:            c.ID,
			Shares:             sz,
			Weight:             weight(i + 1),
			InitiallyAvailable: i < len(ordinary)-cc.Reserved,
		})
	}
	for _, cert := range certs {
		if err := g.registry.Add(cert); err != nil {
			return err
		}
		area := model.IPO
		if !cert.InitiallyAvailable {
			area = model.Unavailable
		}
		if err := g.portfolios.Place(cert.ID, area); err != nil {
			return err
		}
	}

	g.companies[c.ID] = &c
	g.companyOrder = append(g.companyOrder, c.ID)
	return nil
}

// --- Accessors (query surface) ---

// Players returns the players in seating order.
func (g *Game) Players() []*model.Player { return g.players }

// Player returns one player.
func (g *Game) Player(id string) (*model.Player, bool) {
	p, ok := g.playerByID[id]
	return p, ok
}

// Companies returns company IDs in setup order.
func (g *Game) Companies() []string { return g.companyOrder }

// Company returns one company.
func (g *Game) Company(id string) (*model.Company, bool) {
	c, ok := g.companies[id]
	return c, ok
}

// Market exposes the grid for rendering and price queries.
func (g *Game) Market() *stockmarket.Market { return g.market }

// Ledger exposes the currency ledger, including its display formatter.
func (g *Game) Ledger() *ledger.Ledger { return g.ledger }

// Portfolios exposes read access to holders.
func (g *Game) Portfolios() *portfolio.Set { return g.portfolios }

// Rules returns the immutable game options.
func (g *Game) Rules() Rules { return g.rules }

// Round returns the round in progress, or nil.
func (g *Game) Round() *Round { return g.round }

// GameOver reports whether a game-ending cell has been reached.
func (g *Game) GameOver() bool { return g.gameOver }

// Specials returns the special properties (spent ones included).
func (g *Game) Specials() []*model.SpecialProperty { return g.specials }

// ShareBreakdown returns each holder's share units in a company, keyed by
// holder string.
func (g *Game) ShareBreakdown(companyID string) map[string]int {
	out := make(map[string]int)
	add := func(k model.HolderKey) {
		if n := g.portfolios.SharesOf(k, companyID); n > 0 {
			out[k.String()] = n
		}
	}
	for _, p := range g.players {
		add(model.PlayerKey(p.ID))
	}
	for _, cid := range g.companyOrder {
		add(model.TreasuryKey(cid))
	}
	add(model.IPO)
	add(model.Pool)
	add(model.Unavailable)
	add(model.ScrapHeap)
	return out
}

// certLimitExemptCompanies returns the companies whose occupied cell waives
// the certificate limit.
func (g *Game) certLimitExemptCompanies() map[string]bool {
	exempt := make(map[string]bool)
	for _, cid := range g.companyOrder {
		if cell, ok := g.market.CellOf(cid); ok && cell.Type == stockmarket.NoCertLimit {
			exempt[cid] = true
		}
	}
	return exempt
}

// holdLimitUnits returns a player's maximum units in the company, or -1 for
// unlimited (no-hold-limit cell).
func (g *Game) holdLimitUnits(c *model.Company) int {
	if cell, ok := g.market.CellOf(c.ID); ok && cell.Type == stockmarket.NoHoldLimit {
		return -1
	}
	return g.rules.PlayerShareLimit / c.ShareUnit
}

func (g *Game) poolLimitUnits(c *model.Company) int {
	return g.rules.PoolShareLimit / c.ShareUnit
}

func (g *Game) treasuryLimitUnits(c *model.Company) int {
	return g.rules.TreasuryShareLimit / c.ShareUnit
}

// overCertLimit reports whether the player's weighted certificate count
// exceeds the limit.
func (g *Game) overCertLimit(playerID string) bool {
	w := g.portfolios.CertWeight(model.PlayerKey(playerID), g.certLimitExemptCompanies())
	return w.GreaterThan(g.rules.CertLimit)
}

// overHoldLimit returns the companies in which the player exceeds the
// holding limit.
func (g *Game) overHoldLimit(playerID string) []string {
	var over []string
	for _, cid := range g.companyOrder {
		c := g.companies[cid]
		limit := g.holdLimitUnits(c)
		if limit < 0 {
			continue
		}
		if g.portfolios.SharesOf(model.PlayerKey(playerID), cid) > limit {
			over = append(over, cid)
		}
	}
	return over
}

// --- Price movement interface for operating-round collaborators ---

// ApplyPayout moves a company's price right-or-up after a dividend pay-out.
func (g *Game) ApplyPayout(companyID string) ([]Change, error) {
	if _, ok := g.companies[companyID]; !ok {
		return nil, ErrUnknownCompany
	}
	mv, err := g.market.Payout(companyID)
	if err != nil {
		return nil, err
	}
	return g.recordMove(mv), nil
}

// ApplyWithhold moves a company's price left-or-down after withholding.
func (g *Game) ApplyWithhold(companyID string) ([]Change, error) {
	if _, ok := g.companies[companyID]; !ok {
		return nil, ErrUnknownCompany
	}
	mv, err := g.market.Withhold(companyID)
	if err != nil {
		return nil, err
	}
	return g.recordMove(mv), nil
}

// recordMove logs a market move and converts it into change records,
// handling closes-company and game-end consequences.
func (g *Game) recordMove(mv stockmarket.Move) []Change {
	if !mv.Moved {
		g.log.Info("price unchanged", "company", mv.Company, "price", mv.Price)
		return nil
	}
	g.log.Info("price moved",
		"company", mv.Company,
		"to_row", mv.To.Row,
		"to_col", mv.To.Col,
		"price", mv.Price,
	)
	changes := []Change{{
		Type:     ChangePriceMove,
		Company:  mv.Company,
		FromCell: mv.From,
		ToCell:   &mv.To,
		Price:    mv.Price,
	}}
	if mv.Closed {
		c := g.companies[mv.Company]
		c.Closed = true
		changes = append(changes, Change{
			Type: ChangeFlag, Company: mv.Company, Flag: "closed", Old: "false", New: "true",
		})
		g.log.Info("company closed on market", "company", mv.Company)
	}
	if mv.EndsGame {
		g.gameOver = true
		changes = append(changes, Change{
			Type: ChangeFlag, Flag: "game_over", Old: "false", New: "true",
		})
		g.log.Info("game end triggered", "company", mv.Company)
	}
	return changes
}

// --- Invariant audit ---

// Audit verifies conservation, presidency uniqueness, and portfolio/registry
// agreement. Failures are ErrCorruptState: data corruption, not an invalid
// user choice.
func (g *Game) Audit() error {
	holders := []model.HolderKey{model.IPO, model.Pool, model.Unavailable, model.ScrapHeap}
	for _, p := range g.players {
		holders = append(holders, model.PlayerKey(p.ID))
	}
	for _, cid := range g.companyOrder {
		holders = append(holders, model.TreasuryKey(cid))
	}

	seen := make(map[string]model.HolderKey)
	for _, h := range holders {
		certs, err := g.portfolios.Certificates(h)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		for _, c := range certs {
			if prev, dup := seen[c.ID]; dup {
				return fmt.Errorf("%w: certificate %s held by both %s and %s", ErrCorruptState, c.ID, prev, h)
			}
			seen[c.ID] = h
		}
	}
	if len(seen) != g.registry.Len() {
		return fmt.Errorf("%w: %d certificates held, %d registered", ErrCorruptState, len(seen), g.registry.Len())
	}

	for _, cid := range g.companyOrder {
		c := g.companies[cid]
		presidents := 0
		for _, cert := range g.registry.Company(cid) {
			if cert.President {
				presidents++
			}
		}
		if units := g.registry.TotalShares(cid); units != c.TotalShares {
			return fmt.Errorf("%w: company %s has %d units, want %d", ErrCorruptState, cid, units, c.TotalShares)
		}
		if presidents != 1 {
			return fmt.Errorf("%w: company %s has %d president certificates", ErrCorruptState, cid, presidents)
		}
		if err := g.auditPresidency(c); err != nil {
			return err
		}
	}
	return nil
}

// auditPresidency checks that a started company's president certificate sits
// with a player holding no fewer units than any other player.
func (g *Game) auditPresidency(c *model.Company) error {
	if !c.Started || c.Closed {
		return nil
	}
	var president string
	for _, p := range g.players {
		if g.portfolios.HasPresidency(model.PlayerKey(p.ID), c.ID) {
			president = p.ID
			break
		}
	}
	if president == "" {
		return fmt.Errorf("%w: started company %s has no player president", ErrCorruptState, c.ID)
	}
	presUnits := g.portfolios.SharesOf(model.PlayerKey(president), c.ID)
	for _, p := range g.players {
		if p.ID == president {
			continue
		}
		if g.portfolios.SharesOf(model.PlayerKey(p.ID), c.ID) > presUnits {
			return fmt.Errorf("%w: %s out-holds president %s in %s", ErrCorruptState, p.ID, president, c.ID)
		}
	}
	return nil
}
