package game

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Rails-18xx/Rails-sub009/internal/model"
)

// RoundKind tags the trading-round variant. One engine serves all kinds;
// behavior differences are policy checks, not subclasses.
type RoundKind string

const (
	// StockRound is the ordinary trading round: sell/buy/start/pass per
	// player in seating order.
	StockRound RoundKind = "stock"
	// ForcedSaleRound makes one player sell until a cash target is met.
	ForcedSaleRound RoundKind = "forced_sale"
	// TreasuryRound lets one company trade its own shares against the pool.
	TreasuryRound RoundKind = "treasury"
)

type playerRoundState struct {
	Acted    bool `json:"acted"`
	AutoPass bool `json:"auto_pass"`
}

// Round is the transient per-round state. Created fresh at round start,
// discarded when the round finishes; its side effects persist.
type Round struct {
	Kind   RoundKind `json:"kind"`
	Number int       `json:"number"`

	Current  int  `json:"current"`
	Start    int  `json:"start"`
	Passes   int  `json:"passes"`
	Finished bool `json:"finished"`

	// Per-turn state, reset on turn advance.
	BoughtCompany string          `json:"bought_company,omitempty"`
	BoughtCerts   map[string]bool `json:"bought_certs,omitempty"`
	SoldBeforeBuy bool            `json:"sold_before_buy,omitempty"`
	SoldAfterBuy  bool            `json:"sold_after_buy,omitempty"`
	TurnActed     bool            `json:"turn_acted,omitempty"`

	// Per-round state.
	SoldCompanies map[string]map[string]bool  `json:"sold_companies,omitempty"`
	SellPrices    map[string]int64            `json:"sell_prices,omitempty"`
	PlayerState   map[string]*playerRoundState `json:"player_state,omitempty"`

	// Forced-sale rounds.
	ForcedPlayer string `json:"forced_player,omitempty"`
	CashTarget   int64  `json:"cash_target,omitempty"`
	Bankrupt     bool   `json:"bankrupt,omitempty"`

	// Treasury rounds.
	Company      string `json:"company,omitempty"`
	TreasuryMode string `json:"treasury_mode,omitempty"` // "", "buy", "sell"
}

func newRound(kind RoundKind, number int, players []*model.Player) *Round {
	r := &Round{
		Kind:          kind,
		Number:        number,
		SoldCompanies: make(map[string]map[string]bool),
		SellPrices:    make(map[string]int64),
		PlayerState:   make(map[string]*playerRoundState),
		BoughtCerts:   make(map[string]bool),
	}
	for _, p := range players {
		r.PlayerState[p.ID] = &playerRoundState{}
	}
	return r
}

func (r *Round) soldThisRound(playerID, companyID string) bool {
	return r.SoldCompanies[playerID][companyID]
}

func (r *Round) markSold(playerID, companyID string) {
	if r.SoldCompanies[playerID] == nil {
		r.SoldCompanies[playerID] = make(map[string]bool)
	}
	r.SoldCompanies[playerID][companyID] = true
}

// StartStockRound begins an ordinary trading round with the given starting
// player.
func (g *Game) StartStockRound(startPlayerID string) (*Round, error) {
	if g.gameOver {
		return nil, ErrGameOver
	}
	if g.round != nil && !g.round.Finished {
		return nil, fmt.Errorf("round already in progress")
	}
	idx := g.playerIndex(startPlayerID)
	if idx < 0 {
		return nil, ErrUnknownPlayer
	}
	g.roundNumber++
	r := newRound(StockRound, g.roundNumber, g.players)
	r.Start, r.Current = idx, idx
	g.round = r
	g.log.Info("stock round started", "number", r.Number, "start_player", startPlayerID)
	return r, nil
}

// StartForcedSaleRound begins a sell-only round for one player who must raise
// cashTarget. Buying is disabled; the round ends the moment the target is met
// or no further sale is possible (bankruptcy).
func (g *Game) StartForcedSaleRound(playerID string, cashTarget int64) (*Round, error) {
	if g.gameOver {
		return nil, ErrGameOver
	}
	if g.round != nil && !g.round.Finished {
		return nil, fmt.Errorf("round already in progress")
	}
	idx := g.playerIndex(playerID)
	if idx < 0 {
		return nil, ErrUnknownPlayer
	}
	g.roundNumber++
	r := newRound(ForcedSaleRound, g.roundNumber, g.players)
	r.Start, r.Current = idx, idx
	r.ForcedPlayer = playerID
	r.CashTarget = cashTarget
	g.round = r
	g.evaluateForcedRound(r, nil)
	g.log.Info("forced sale round started",
		"player", playerID,
		"target", g.ledger.Format(cashTarget),
		"bankrupt", r.Bankrupt,
	)
	return r, nil
}

// StartTreasuryRound begins a round in which companyID trades its own shares
// against the pool, acting through its president. A company that buys may not
// also sell within the round, and vice versa.
func (g *Game) StartTreasuryRound(companyID string) (*Round, error) {
	if g.gameOver {
		return nil, ErrGameOver
	}
	if g.round != nil && !g.round.Finished {
		return nil, fmt.Errorf("round already in progress")
	}
	c, ok := g.companies[companyID]
	if !ok {
		return nil, ErrUnknownCompany
	}
	if !c.Started {
		return nil, ErrCompanyNotStarted
	}
	if c.Closed {
		return nil, ErrCompanyClosed
	}
	president, err := g.presidentOf(companyID)
	if err != nil {
		return nil, err
	}
	g.roundNumber++
	r := newRound(TreasuryRound, g.roundNumber, g.players)
	r.Company = companyID
	idx := g.playerIndex(president)
	r.Start, r.Current = idx, idx
	g.round = r
	g.log.Info("treasury round started", "company", companyID, "president", president)
	return r, nil
}

func (g *Game) playerIndex(playerID string) int {
	for i, p := range g.players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// presidentOf returns the player holding a company's president certificate.
func (g *Game) presidentOf(companyID string) (string, error) {
	for _, p := range g.players {
		if g.portfolios.HasPresidency(model.PlayerKey(p.ID), companyID) {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("%w: no player holds the president certificate of %s", ErrCorruptState, companyID)
}

// currentActor re-derives the acting player from current state. Never cached
// across calls: stale-state replay must not slip through.
func (g *Game) currentActor() (string, error) {
	r := g.round
	if r == nil || r.Finished {
		return "", ErrNoActiveRound
	}
	switch r.Kind {
	case ForcedSaleRound:
		return r.ForcedPlayer, nil
	case TreasuryRound:
		return g.presidentOf(r.Company)
	default:
		if r.Current < 0 || r.Current >= len(g.players) {
			return "", fmt.Errorf("%w: current player index %d", ErrCorruptState, r.Current)
		}
		return g.players[r.Current].ID, nil
	}
}

func (g *Game) activePlayerCount() int {
	n := 0
	for _, p := range g.players {
		if !p.Bankrupt {
			n++
		}
	}
	return n
}

func (g *Game) overAnyLimit(playerID string) bool {
	return g.overCertLimit(playerID) || len(g.overHoldLimit(playerID)) > 0
}

// Process validates and applies one action. The acting player and round state
// are re-derived here rather than trusted from any earlier computation.
// Validation completes before the first mutation, so a rejection never leaves
// partial state.
func (g *Game) Process(a Action) (*Result, error) {
	if g.gameOver {
		return nil, ErrGameOver
	}
	r := g.round
	if r == nil || r.Finished {
		return nil, ErrNoActiveRound
	}
	if _, ok := g.playerByID[a.Player]; !ok {
		return nil, ErrUnknownPlayer
	}

	// A turn request is the one action accepted out of turn.
	if a.Type == ActionRequestTurn {
		return g.processRequestTurn(a)
	}

	actor, err := g.currentActor()
	if err != nil {
		return nil, err
	}
	if a.Player != actor {
		return nil, fmt.Errorf("%w: %s is to act", ErrNotYourTurn, actor)
	}

	var res *Result
	switch r.Kind {
	case StockRound:
		res, err = g.processStockAction(a)
	case ForcedSaleRound:
		res, err = g.processForcedAction(a)
	case TreasuryRound:
		res, err = g.processTreasuryAction(a)
	default:
		return nil, fmt.Errorf("%w: round kind %q", ErrCorruptState, r.Kind)
	}
	if err != nil {
		return nil, err
	}

	if g.market.GameEndTriggered() {
		g.gameOver = true
		res.GameEndTriggered = true
	}
	res.RoundFinished = r.Finished
	g.log.Info("action applied",
		"action", res.ActionID,
		"type", a.Type,
		"player", a.Player,
		"company", a.Company,
		"changes", len(res.Changes),
		"round_finished", r.Finished,
	)
	return res, nil
}

func (g *Game) processStockAction(a Action) (*Result, error) {
	if g.overAnyLimit(a.Player) && a.Type != ActionSell {
		return nil, ErrMustSellDown
	}

	switch a.Type {
	case ActionStart:
		return g.processStart(a)
	case ActionBuy:
		return g.processBuy(a)
	case ActionSell:
		return g.processSell(a)
	case ActionUseSpecial:
		return g.processSpecial(a)
	case ActionPass:
		return g.processPass(a)
	default:
		return nil, fmt.Errorf("%w: %s in stock round", ErrActionNotAllowed, a.Type)
	}
}

func (g *Game) processForcedAction(a Action) (*Result, error) {
	switch a.Type {
	case ActionSell:
		res, err := g.processSell(a)
		if err != nil {
			return nil, err
		}
		g.evaluateForcedRound(g.round, res)
		return res, nil
	case ActionPass:
		return nil, ErrCannotPassForced
	default:
		return nil, fmt.Errorf("%w: %s while raising cash", ErrActionNotAllowed, a.Type)
	}
}

// evaluateForcedRound ends a forced-sale round when the target is met, or
// declares bankruptcy when the player is short with nothing left to sell.
func (g *Game) evaluateForcedRound(r *Round, res *Result) {
	cash := g.ledger.Balance(model.PlayerKey(r.ForcedPlayer))
	if cash >= r.CashTarget {
		r.Finished = true
		return
	}
	for _, cid := range g.companyOrder {
		if opts := g.sellableAmounts(r.ForcedPlayer, cid); len(opts) > 0 {
			return
		}
	}
	r.Bankrupt = true
	r.Finished = true
	g.playerByID[r.ForcedPlayer].Bankrupt = true
	if res != nil {
		res.Bankrupt = true
		res.Changes = append(res.Changes, Change{
			Type: ChangeFlag, Flag: "bankrupt:" + r.ForcedPlayer, Old: "false", New: "true",
		})
	}
	g.log.Info("player bankrupt", "player", r.ForcedPlayer, "short_of", g.ledger.Format(r.CashTarget))
}

func (g *Game) processTreasuryAction(a Action) (*Result, error) {
	switch a.Type {
	case ActionBuy:
		return g.processTreasuryBuy(a)
	case ActionSell:
		return g.processTreasurySell(a)
	case ActionPass:
		g.round.Finished = true
		return g.newResult(a, nil), nil
	default:
		return nil, fmt.Errorf("%w: %s in treasury round", ErrActionNotAllowed, a.Type)
	}
}

func (g *Game) processRequestTurn(a Action) (*Result, error) {
	st := g.round.PlayerState[a.Player]
	if st == nil {
		return nil, ErrUnknownPlayer
	}
	var changes []Change
	if st.AutoPass {
		st.AutoPass = false
		changes = append(changes, Change{
			Type: ChangeFlag, Flag: "autopass:" + a.Player, Old: "true", New: "false",
		})
	}
	return g.newResult(a, changes), nil
}

func (g *Game) processSpecial(a Action) (*Result, error) {
	for _, sp := range g.specials {
		if sp.ID != a.Special {
			continue
		}
		if sp.Player != a.Player || sp.Used {
			return nil, ErrUnknownSpecial
		}
		sp.Used = true
		changes := []Change{{
			Type: ChangeFlag, Flag: "special_used:" + sp.ID, Old: "false", New: "true",
		}}
		g.markActed(a.Player)
		return g.newResult(a, changes), nil
	}
	return nil, ErrUnknownSpecial
}

func (g *Game) processPass(a Action) (*Result, error) {
	r := g.round
	var changes []Change
	if !r.TurnActed {
		r.Passes++
		if a.AutoPass {
			st := r.PlayerState[a.Player]
			if !st.AutoPass {
				st.AutoPass = true
				changes = append(changes, Change{
					Type: ChangeFlag, Flag: "autopass:" + a.Player, Old: "false", New: "true",
				})
			}
		}
	}
	if r.Passes >= g.activePlayerCount() {
		changes = append(changes, g.finishStockRound()...)
		return g.newResult(a, changes), nil
	}
	g.advanceTurn()
	if r.Finished {
		// Autopass chain consumed the remaining passes.
		changes = append(changes, g.finishStockRound()...)
	}
	return g.newResult(a, changes), nil
}

// markActed records a state-changing action: the acted flag is set and the
// shared pass counter resets.
func (g *Game) markActed(playerID string) {
	r := g.round
	r.TurnActed = true
	r.Passes = 0
	if st := r.PlayerState[playerID]; st != nil {
		st.Acted = true
	}
}

// advanceTurn moves to the next eligible player, consuming autopasses. An
// autopass is cleared, not consumed, when its player is over a limit and
// needs to act.
func (g *Game) advanceTurn() {
	r := g.round
	r.BoughtCompany = ""
	r.BoughtCerts = make(map[string]bool)
	r.SoldBeforeBuy = false
	r.SoldAfterBuy = false
	r.TurnActed = false

	active := g.activePlayerCount()
	for i := 0; i < len(g.players)*2; i++ {
		r.Current = (r.Current + 1) % len(g.players)
		p := g.players[r.Current]
		if p.Bankrupt {
			continue
		}
		st := r.PlayerState[p.ID]
		if st.AutoPass {
			if g.overAnyLimit(p.ID) {
				st.AutoPass = false
				return
			}
			r.Passes++
			if r.Passes >= active {
				r.Finished = true
				return
			}
			continue
		}
		return
	}
	// Everyone bankrupt or auto-passing without reaching the pass count
	// cannot happen; treat as round end.
	r.Finished = true
}

// finishStockRound ends the round and applies the sold-out price bonus: each
// started company with no shares left in the IPO or pool moves up.
func (g *Game) finishStockRound() []Change {
	r := g.round
	r.Finished = true
	var changes []Change
	for _, cid := range g.companyOrder {
		c := g.companies[cid]
		if !c.Started || c.Closed {
			continue
		}
		if g.portfolios.SharesOf(model.IPO, cid) > 0 || g.portfolios.SharesOf(model.Pool, cid) > 0 {
			continue
		}
		mv, err := g.market.SoldOut(cid)
		if err != nil {
			continue
		}
		changes = append(changes, g.recordMove(mv)...)
	}
	if g.market.GameEndTriggered() {
		g.gameOver = true
	}
	g.log.Info("stock round finished", "number", r.Number)
	return changes
}

func (g *Game) newResult(a Action, changes []Change) *Result {
	return &Result{
		ActionID: uuid.New().String(),
		Action:   a,
		Changes:  changes,
	}
}

// --- Mutation helpers: every mutation goes through these so each one is
// captured as a reversible change record. They are called only after full
// validation; a failure here is state corruption. ---

func (g *Game) moveCert(certID string, from, to model.HolderKey, changes *[]Change) error {
	if err := g.portfolios.MoveCertificate(certID, from, to); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	f, t := from, to
	*changes = append(*changes, Change{
		Type:        ChangeCertificateMove,
		Certificate: certID,
		From:        &f,
		To:          &t,
	})
	return nil
}

func (g *Game) moveCash(amount int64, from, to model.HolderKey, changes *[]Change) error {
	if amount == 0 {
		return nil
	}
	if err := g.ledger.Move(amount, from, to); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	f, t := from, to
	*changes = append(*changes, Change{
		Type:   ChangeCashMove,
		Amount: amount,
		From:   &f,
		To:     &t,
	})
	return nil
}
