package game

import (
	"fmt"

	"github.com/Rails-18xx/Rails-sub009/internal/model"
	"github.com/Rails-18xx/Rails-sub009/internal/shares"
)

// sellPlan is a fully validated sale: the certificates leaving the seller,
// the dump script when the presidency changes hands, and the certificate
// count that drives the price drop.
type sellPlan struct {
	company *model.Company
	// ordinaryIDs are the seller's non-president certificates sold to the
	// pool.
	ordinaryIDs []string
	// dump is non-nil when the sale costs the seller the presidency.
	dump *dumpPlan
	// certsSold is the number of certificates entering the pool from the
	// seller's hand; the price drops one row per certificate.
	certsSold int
}

// planSell validates a sale of amount share units without mutating anything.
// Sequencing rules are the round's business; this covers holdings, pool
// capacity, and presidency consequences.
func (g *Game) planSell(playerID, companyID string, amount int) (*sellPlan, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
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

	sellerKey := model.PlayerKey(playerID)
	playerUnits := g.portfolios.SharesOf(sellerKey, companyID)
	if amount > playerUnits {
		return nil, fmt.Errorf("%w: holds %d units, selling %d", ErrInsufficientShares, playerUnits, amount)
	}
	poolUnits := g.portfolios.SharesOf(model.Pool, companyID)
	if poolUnits+amount > g.poolLimitUnits(c) {
		return nil, ErrPoolLimit
	}

	certs, err := g.portfolios.CompanyCertificates(sellerKey, companyID)
	if err != nil {
		return nil, err
	}
	r := g.round
	justBought := func(id string) bool {
		return g.rules.NoSaleOfJustBought && r != nil && r.BoughtCerts[id]
	}
	var ordinary []model.Certificate
	presidentLocked := false
	for _, cert := range certs {
		if cert.President {
			presidentLocked = justBought(cert.ID)
			continue
		}
		if justBought(cert.ID) {
			continue
		}
		ordinary = append(ordinary, cert)
	}
	ordinarySizes := make([]int, len(ordinary))
	for i, cert := range ordinary {
		ordinarySizes[i] = cert.Shares
	}

	plan := &sellPlan{company: c}
	if g.portfolios.HasPresidency(sellerKey, companyID) {
		bestOther := 0
		for _, p := range g.players {
			if p.ID == playerID {
				continue
			}
			if n := g.portfolios.SharesOf(model.PlayerKey(p.ID), companyID); n > bestOther {
				bestOther = n
			}
		}
		if amount >= shares.DumpThreshold(playerUnits, bestOther) && bestOther > 0 {
			if presidentLocked {
				return nil, ErrSellJustBought
			}
			dump, soldIDs, err := g.planDump(playerID, c, amount, ordinary)
			if err != nil {
				return nil, err
			}
			// Forfeited president-certificate units enter the pool too.
			if poolUnits+amount+dump.ForfeitedUnits > g.poolLimitUnits(c) {
				return nil, ErrPoolLimit
			}
			plan.dump = dump
			plan.ordinaryIDs = soldIDs
			plan.certsSold = len(soldIDs)
			if dump.PresidentUnitsSold+dump.ForfeitedUnits > 0 {
				plan.certsSold++
			}
			return plan, nil
		}
	}

	sel, err := shares.MinCombination(ordinarySizes, amount)
	if err != nil {
		return nil, ErrNoCombination
	}
	for _, i := range sel {
		plan.ordinaryIDs = append(plan.ordinaryIDs, ordinary[i].ID)
	}
	plan.certsSold = len(plan.ordinaryIDs)
	return plan, nil
}

// sellableAmounts returns the share-unit amounts the player could legally
// sell of a company right now, ignoring turn-sequencing rules.
func (g *Game) sellableAmounts(playerID, companyID string) []int {
	c, ok := g.companies[companyID]
	if !ok || !c.Started || c.Closed {
		return nil
	}
	held := g.portfolios.SharesOf(model.PlayerKey(playerID), companyID)
	var amounts []int
	for n := 1; n <= held; n++ {
		if _, err := g.planSell(playerID, companyID, n); err == nil {
			amounts = append(amounts, n)
		}
	}
	return amounts
}

// processSell handles a player's sale into the pool, including any presidency
// dump the amount implies. Proceeds come from the bank; the price drops one
// row per certificate sold.
func (g *Game) processSell(a Action) (*Result, error) {
	r := g.round
	if r.Kind == StockRound {
		if g.rules.NoSaleInFirstRound && r.Number == 1 {
			return nil, ErrFirstRoundSale
		}
		switch g.rules.Sequence {
		case SellBuy:
			if r.BoughtCompany != "" {
				return nil, ErrSellAfterBuy
			}
		case FreeOrder:
			if r.BoughtCompany != "" && r.SoldBeforeBuy {
				return nil, ErrSellAfterBuy
			}
		}
	}

	plan, err := g.planSell(a.Player, a.Company, a.Shares)
	if err != nil {
		return nil, err
	}
	c := plan.company

	price, ok := g.market.PriceOf(c.ID)
	if !ok {
		return nil, ErrCompanyNotStarted
	}
	if g.rules.SeparateSalesAtSamePrice {
		if recorded, ok := r.SellPrices[c.ID]; ok {
			price = recorded
		} else {
			r.SellPrices[c.ID] = price
		}
	}

	// Validated; apply.
	var changes []Change
	sellerKey := model.PlayerKey(a.Player)
	if d := plan.dump; d != nil {
		npKey := model.PlayerKey(d.NewPresident)
		for _, id := range d.SwapCertIDs {
			if err := g.moveCert(id, npKey, model.Pool, &changes); err != nil {
				return nil, err
			}
		}
		if err := g.moveCert(d.PresidentCertID, sellerKey, npKey, &changes); err != nil {
			return nil, err
		}
		for _, id := range d.ReturnCertIDs {
			if err := g.moveCert(id, model.Pool, sellerKey, &changes); err != nil {
				return nil, err
			}
		}
		g.log.Info("presidency dumped",
			"company", c.ID,
			"from", a.Player,
			"to", d.NewPresident,
			"president_units_sold", d.PresidentUnitsSold,
			"forfeited_units", d.ForfeitedUnits,
		)
	}
	for _, id := range plan.ordinaryIDs {
		if err := g.moveCert(id, sellerKey, model.Pool, &changes); err != nil {
			return nil, err
		}
	}
	unitsSold := a.Shares
	if plan.dump != nil {
		unitsSold += plan.dump.ForfeitedUnits
	}
	proceeds := price * int64(unitsSold)
	if err := g.moveCash(proceeds, model.Bank, sellerKey, &changes); err != nil {
		return nil, err
	}
	mv, err := g.market.Sell(c.ID, plan.certsSold, c.CanClose)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	changes = append(changes, g.recordMove(mv)...)

	r.markSold(a.Player, c.ID)
	if r.Kind == StockRound {
		if r.BoughtCompany == "" {
			r.SoldBeforeBuy = true
		} else {
			r.SoldAfterBuy = true
		}
	}
	g.markActed(a.Player)
	return g.newResult(a, changes), nil
}

// processTreasurySell lets the acting company sell its own held shares into
// the pool. Mutually exclusive with treasury buying within the round.
func (g *Game) processTreasurySell(a Action) (*Result, error) {
	r := g.round
	if a.Company != r.Company {
		return nil, fmt.Errorf("%w: the treasury round is for %s", ErrActionNotAllowed, r.Company)
	}
	if r.TreasuryMode == "buy" {
		return nil, ErrBuyOnlyOrSellOnly
	}
	if a.Shares <= 0 {
		return nil, ErrInvalidAmount
	}
	c := g.companies[r.Company]
	treasuryKey := model.TreasuryKey(c.ID)

	poolUnits := g.portfolios.SharesOf(model.Pool, c.ID)
	if poolUnits+a.Shares > g.poolLimitUnits(c) {
		return nil, ErrPoolLimit
	}
	certIDs, err := g.combinationFrom(treasuryKey, c.ID, a.Shares)
	if err != nil {
		held := g.portfolios.SharesOf(treasuryKey, c.ID)
		if a.Shares > held {
			return nil, fmt.Errorf("%w: treasury holds %d units, selling %d", ErrInsufficientShares, held, a.Shares)
		}
		return nil, ErrNoCombination
	}
	price, ok := g.market.PriceOf(c.ID)
	if !ok {
		return nil, ErrCompanyNotStarted
	}

	var changes []Change
	for _, id := range certIDs {
		if err := g.moveCert(id, treasuryKey, model.Pool, &changes); err != nil {
			return nil, err
		}
	}
	proceeds := price * int64(a.Shares)
	if err := g.moveCash(proceeds, model.Bank, treasuryKey, &changes); err != nil {
		return nil, err
	}
	mv, err := g.market.Sell(c.ID, len(certIDs), c.CanClose)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	changes = append(changes, g.recordMove(mv)...)

	r.TreasuryMode = "sell"
	r.TurnActed = true
	return g.newResult(a, changes), nil
}
