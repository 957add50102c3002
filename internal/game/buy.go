package game

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Rails-18xx/Rails-sub009/internal/model"
	"github.com/Rails-18xx/Rails-sub009/internal/shares"
	"github.com/Rails-18xx/Rails-sub009/internal/stockmarket"
)

// processStart handles start-company: the acting player sets the par price
// and takes the president certificate from the IPO. A start counts as the
// turn's purchase.
func (g *Game) processStart(a Action) (*Result, error) {
	r := g.round
	c, ok := g.companies[a.Company]
	if !ok {
		return nil, ErrUnknownCompany
	}
	if c.Started {
		return nil, ErrCompanyStarted
	}
	if c.Closed {
		return nil, ErrCompanyClosed
	}
	if r.BoughtCompany != "" {
		return nil, ErrAlreadyBought
	}

	par := a.Price
	if c.IPOPolicy == model.IPOFixed {
		if par != 0 && par != c.FixedPrice {
			return nil, fmt.Errorf("%w: company %s starts at the fixed price %d", ErrInvalidPar, c.ID, c.FixedPrice)
		}
		par = c.FixedPrice
	}
	pos, ok := g.market.FindStartCell(par)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPar, par)
	}
	cell, err := g.market.CellAt(pos)
	if err != nil {
		return nil, err
	}

	playerKey := model.PlayerKey(a.Player)
	cost := int64(c.PresidentShares) * par
	if g.ledger.Balance(playerKey) < cost {
		return nil, fmt.Errorf("%w: start costs %s", ErrCannotAfford, g.ledger.Format(cost))
	}
	if limit := g.rules.PlayerShareLimit / c.ShareUnit; cell.Type != stockmarket.NoHoldLimit && c.PresidentShares > limit {
		return nil, ErrHoldLimit
	}
	presCertID, presCert, err := g.presidentCert(c.ID)
	if err != nil {
		return nil, err
	}
	if cell.Type != stockmarket.NoCertLimit {
		w := g.portfolios.CertWeight(playerKey, g.certLimitExemptCompanies())
		if w.Add(presCert.Weight).GreaterThan(g.rules.CertLimit) {
			return nil, ErrCertLimit
		}
	}

	// Validated; apply.
	var changes []Change
	mv, err := g.market.Enter(c.ID, pos)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	changes = append(changes, g.recordMove(mv)...)
	c.Started = true
	c.ParPrice = par
	changes = append(changes, Change{
		Type: ChangeFlag, Company: c.ID, Flag: "started", Old: "false", New: "true",
	})
	if err := g.moveCert(presCertID, model.IPO, playerKey, &changes); err != nil {
		return nil, err
	}
	if err := g.moveCash(cost, playerKey, model.Bank, &changes); err != nil {
		return nil, err
	}
	if err := g.maybeFloat(c, &changes); err != nil {
		return nil, err
	}

	r.BoughtCompany = c.ID
	r.BoughtCerts[presCertID] = true
	g.markActed(a.Player)
	return g.newResult(a, changes), nil
}

// processBuy handles a player buying from the IPO (at par) or the pool (at
// market price). Neither purchase moves the price.
func (g *Game) processBuy(a Action) (*Result, error) {
	r := g.round
	c, ok := g.companies[a.Company]
	if !ok {
		return nil, ErrUnknownCompany
	}
	if a.Shares <= 0 {
		return nil, ErrInvalidAmount
	}
	if !c.Started {
		return nil, ErrCompanyNotStarted
	}
	if c.Closed {
		return nil, ErrCompanyClosed
	}
	if a.From != model.IPO && a.From != model.Pool {
		return nil, fmt.Errorf("%w: players buy from the initial offering or the pool", ErrActionNotAllowed)
	}
	if r.soldThisRound(a.Player, c.ID) {
		return nil, ErrSoldThisRound
	}
	if r.BoughtCompany != "" {
		cell, onGrid := g.market.CellOf(c.ID)
		if !(onGrid && cell.Type == stockmarket.NoBuyLimit && r.BoughtCompany == c.ID) {
			return nil, ErrAlreadyBought
		}
	}

	certIDs, certWeight, err := g.selectBuyCerts(a.From, c.ID, a.Shares)
	if err != nil {
		return nil, err
	}
	playerKey := model.PlayerKey(a.Player)
	if limit := g.holdLimitUnits(c); limit >= 0 {
		if g.portfolios.SharesOf(playerKey, c.ID)+a.Shares > limit {
			return nil, ErrHoldLimit
		}
	}
	exempt := g.certLimitExemptCompanies()
	if !exempt[c.ID] {
		w := g.portfolios.CertWeight(playerKey, exempt)
		if w.Add(certWeight).GreaterThan(g.rules.CertLimit) {
			return nil, ErrCertLimit
		}
	}
	price, err := g.buyPrice(c, a.From)
	if err != nil {
		return nil, err
	}
	cost := price * int64(a.Shares)
	if g.ledger.Balance(playerKey) < cost {
		return nil, fmt.Errorf("%w: %d shares cost %s", ErrCannotAfford, a.Shares, g.ledger.Format(cost))
	}

	// Validated; apply.
	var changes []Change
	for _, id := range certIDs {
		if err := g.moveCert(id, a.From, playerKey, &changes); err != nil {
			return nil, err
		}
		r.BoughtCerts[id] = true
	}
	if err := g.moveCash(cost, playerKey, model.Bank, &changes); err != nil {
		return nil, err
	}
	if a.From == model.IPO {
		if err := g.maybeFloat(c, &changes); err != nil {
			return nil, err
		}
	}
	if err := g.maybeTransferPresidency(c, a.Player, &changes); err != nil {
		return nil, err
	}

	r.BoughtCompany = c.ID
	g.markActed(a.Player)
	return g.newResult(a, changes), nil
}

// processTreasuryBuy lets the acting company buy its own shares from the
// pool. Mutually exclusive with treasury selling within the round.
func (g *Game) processTreasuryBuy(a Action) (*Result, error) {
	r := g.round
	if a.Company != r.Company {
		return nil, fmt.Errorf("%w: the treasury round is for %s", ErrActionNotAllowed, r.Company)
	}
	if a.From != model.Pool {
		return nil, fmt.Errorf("%w: a treasury buys from the pool", ErrActionNotAllowed)
	}
	if r.TreasuryMode == "sell" {
		return nil, ErrBuyOnlyOrSellOnly
	}
	if a.Shares <= 0 {
		return nil, ErrInvalidAmount
	}
	c := g.companies[r.Company]
	certIDs, _, err := g.selectBuyCerts(model.Pool, c.ID, a.Shares)
	if err != nil {
		return nil, err
	}
	treasuryKey := model.TreasuryKey(c.ID)
	if g.portfolios.SharesOf(treasuryKey, c.ID)+a.Shares > g.treasuryLimitUnits(c) {
		return nil, ErrTreasuryLimit
	}
	price, err := g.buyPrice(c, model.Pool)
	if err != nil {
		return nil, err
	}
	cost := price * int64(a.Shares)
	if g.ledger.Balance(treasuryKey) < cost {
		return nil, fmt.Errorf("%w: %d shares cost %s", ErrCannotAfford, a.Shares, g.ledger.Format(cost))
	}

	var changes []Change
	for _, id := range certIDs {
		if err := g.moveCert(id, model.Pool, treasuryKey, &changes); err != nil {
			return nil, err
		}
	}
	if err := g.moveCash(cost, treasuryKey, model.Bank, &changes); err != nil {
		return nil, err
	}
	r.TreasuryMode = "buy"
	r.TurnActed = true
	return g.newResult(a, changes), nil
}

// selectBuyCerts picks the fewest non-president certificates of the company
// in the source holder summing exactly to the requested share units.
func (g *Game) selectBuyCerts(from model.HolderKey, companyID string, units int) ([]string, decimal.Decimal, error) {
	certs, err := g.portfolios.CompanyCertificates(from, companyID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	var ordinary []model.Certificate
	total := 0
	for _, c := range certs {
		if c.President {
			continue
		}
		ordinary = append(ordinary, c)
		total += c.Shares
	}
	if total < units {
		return nil, decimal.Zero, fmt.Errorf("%w: %s holds %d units of %s", ErrInsufficientShares, from, total, companyID)
	}
	sizes := make([]int, len(ordinary))
	for i, c := range ordinary {
		sizes[i] = c.Shares
	}
	sel, err := shares.MinCombination(sizes, units)
	if err != nil {
		return nil, decimal.Zero, ErrNoCombination
	}
	ids := make([]string, 0, len(sel))
	weight := decimal.Zero
	for _, i := range sel {
		ids = append(ids, ordinary[i].ID)
		weight = weight.Add(ordinary[i].Weight)
	}
	return ids, weight, nil
}

// buyPrice returns the per-share price for a purchase from the given source:
// par from the IPO, current market price from the pool or a treasury.
func (g *Game) buyPrice(c *model.Company, from model.HolderKey) (int64, error) {
	if from == model.IPO {
		return c.ParPrice, nil
	}
	price, ok := g.market.PriceOf(c.ID)
	if !ok {
		return 0, ErrCompanyNotStarted
	}
	return price, nil
}

// maybeFloat floats the company once enough of its shares have left the IPO,
// crediting the treasury with its capitalization.
func (g *Game) maybeFloat(c *model.Company, changes *[]Change) error {
	if c.Floated || c.FloatPercent <= 0 {
		return nil
	}
	held := g.portfolios.SharesOf(model.IPO, c.ID) + g.portfolios.SharesOf(model.Unavailable, c.ID)
	soldPercent := (c.TotalShares - held) * c.ShareUnit
	if soldPercent < c.FloatPercent {
		return nil
	}
	c.Floated = true
	*changes = append(*changes, Change{
		Type: ChangeFlag, Company: c.ID, Flag: "floated", Old: "false", New: "true",
	})
	capital := int64(c.CapitalShares) * c.ParPrice
	if err := g.moveCash(capital, model.Bank, model.TreasuryKey(c.ID), changes); err != nil {
		return err
	}
	g.log.Info("company floated", "company", c.ID, "capital", g.ledger.Format(capital))
	return nil
}
