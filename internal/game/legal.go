package game

import (
	"github.com/Rails-18xx/Rails-sub009/internal/model"
	"github.com/Rails-18xx/Rails-sub009/internal/shares"
	"github.com/Rails-18xx/Rails-sub009/internal/stockmarket"
)

// SellOption lists the amounts of one company the actor could sell now.
type SellOption struct {
	Company string `json:"company"`
	Amounts []int  `json:"amounts"`
	// Price is the per-unit price the sale would fetch.
	Price int64 `json:"price"`
	// DumpThreshold is the amount at which the sale costs the presidency;
	// zero when the actor is not the president.
	DumpThreshold int `json:"dump_threshold,omitempty"`
}

// BuyOption lists the amounts of one company the actor could buy from one
// source holder.
type BuyOption struct {
	Company string          `json:"company"`
	From    model.HolderKey `json:"from"`
	Price   int64           `json:"price"`
	Amounts []int           `json:"amounts"`
}

// StartOption lists the par prices at which the actor could start a company.
type StartOption struct {
	Company   string  `json:"company"`
	ParPrices []int64 `json:"par_prices"`
}

// LegalActions is the menu of everything the acting party may do right now.
// It is advisory: Process re-validates from current state regardless.
type LegalActions struct {
	Player string    `json:"player"`
	Kind   RoundKind `json:"kind"`

	Sells    []SellOption  `json:"sells,omitempty"`
	Buys     []BuyOption   `json:"buys,omitempty"`
	Starts   []StartOption `json:"starts,omitempty"`
	Specials []string      `json:"specials,omitempty"`

	// MustSell names the companies the actor over-holds; while non-empty,
	// selling is the only move.
	MustSell []string `json:"must_sell,omitempty"`
	CanPass  bool     `json:"can_pass"`
}

// LegalActions enumerates the current actor's options. Returns an error when
// no round is in progress.
func (g *Game) LegalActions() (*LegalActions, error) {
	if g.gameOver {
		return nil, ErrGameOver
	}
	actor, err := g.currentActor()
	if err != nil {
		return nil, err
	}
	r := g.round
	la := &LegalActions{Player: actor, Kind: r.Kind}

	switch r.Kind {
	case ForcedSaleRound:
		la.Sells = g.sellOptions(actor)
		return la, nil
	case TreasuryRound:
		g.treasuryOptions(la)
		return la, nil
	}

	if over := g.overHoldLimit(actor); len(over) > 0 || g.overCertLimit(actor) {
		la.MustSell = over
		la.Sells = g.sellOptions(actor)
		return la, nil
	}
	la.CanPass = true
	if g.sellingAllowed() {
		la.Sells = g.sellOptions(actor)
	}
	if r.BoughtCompany == "" {
		la.Starts = g.startOptions(actor)
	}
	la.Buys = g.buyOptions(actor)
	for _, sp := range g.specials {
		if sp.Player == actor && !sp.Used {
			la.Specials = append(la.Specials, sp.ID)
		}
	}
	return la, nil
}

// sellingAllowed applies the stock round's sequencing and first-round gates.
func (g *Game) sellingAllowed() bool {
	r := g.round
	if g.rules.NoSaleInFirstRound && r.Number == 1 {
		return false
	}
	switch g.rules.Sequence {
	case SellBuy:
		return r.BoughtCompany == ""
	case FreeOrder:
		return r.BoughtCompany == "" || !r.SoldBeforeBuy
	}
	return true
}

func (g *Game) sellOptions(playerID string) []SellOption {
	var opts []SellOption
	for _, cid := range g.companyOrder {
		amounts := g.sellableAmounts(playerID, cid)
		if len(amounts) == 0 {
			continue
		}
		opt := SellOption{Company: cid, Amounts: amounts}
		if price, ok := g.market.PriceOf(cid); ok {
			opt.Price = price
			if g.rules.SeparateSalesAtSamePrice {
				if recorded, ok := g.round.SellPrices[cid]; ok {
					opt.Price = recorded
				}
			}
		}
		if g.portfolios.HasPresidency(model.PlayerKey(playerID), cid) {
			held := g.portfolios.SharesOf(model.PlayerKey(playerID), cid)
			bestOther := 0
			for _, p := range g.players {
				if p.ID == playerID {
					continue
				}
				if n := g.portfolios.SharesOf(model.PlayerKey(p.ID), cid); n > bestOther {
					bestOther = n
				}
			}
			opt.DumpThreshold = shares.DumpThreshold(held, bestOther)
		}
		opts = append(opts, opt)
	}
	return opts
}

func (g *Game) startOptions(playerID string) []StartOption {
	cash := g.ledger.Balance(model.PlayerKey(playerID))
	var opts []StartOption
	for _, cid := range g.companyOrder {
		c := g.companies[cid]
		if c.Started || c.Closed {
			continue
		}
		presCertID, _, err := g.presidentCert(cid)
		if err != nil {
			continue
		}
		if owner, ok := g.portfolios.OwnerOf(presCertID); !ok || owner != model.IPO {
			continue
		}
		var prices []int64
		for _, cell := range g.market.StartCells() {
			if c.IPOPolicy == model.IPOFixed && cell.Price != c.FixedPrice {
				continue
			}
			if int64(c.PresidentShares)*cell.Price > cash {
				continue
			}
			prices = append(prices, cell.Price)
		}
		if len(prices) > 0 {
			opts = append(opts, StartOption{Company: cid, ParPrices: prices})
		}
	}
	return opts
}

func (g *Game) buyOptions(playerID string) []BuyOption {
	r := g.round
	playerKey := model.PlayerKey(playerID)
	cash := g.ledger.Balance(playerKey)
	exempt := g.certLimitExemptCompanies()

	var opts []BuyOption
	for _, cid := range g.companyOrder {
		c := g.companies[cid]
		if !c.Started || c.Closed || r.soldThisRound(playerID, cid) {
			continue
		}
		if r.BoughtCompany != "" {
			cell, onGrid := g.market.CellOf(cid)
			if !(onGrid && cell.Type == stockmarket.NoBuyLimit && r.BoughtCompany == cid) {
				continue
			}
		}
		for _, from := range []model.HolderKey{model.IPO, model.Pool} {
			price, err := g.buyPrice(c, from)
			if err != nil {
				continue
			}
			amounts := g.buyableAmounts(playerKey, c, from, price, cash, exempt)
			if len(amounts) > 0 {
				opts = append(opts, BuyOption{Company: cid, From: from, Price: price, Amounts: amounts})
			}
		}
	}
	return opts
}

// buyableAmounts filters the source's formable totals by affordability and
// the holding and certificate limits.
func (g *Game) buyableAmounts(playerKey model.HolderKey, c *model.Company, from model.HolderKey, price, cash int64, exempt map[string]bool) []int {
	certs, err := g.portfolios.CompanyCertificates(from, c.ID)
	if err != nil {
		return nil
	}
	var sizes []int
	for _, cert := range certs {
		if !cert.President {
			sizes = append(sizes, cert.Shares)
		}
	}
	held := g.portfolios.SharesOf(playerKey, c.ID)
	limit := g.holdLimitUnits(c)
	var amounts []int
	for _, n := range shares.Totals(sizes, c.TotalShares) {
		if limit >= 0 && held+n > limit {
			continue
		}
		if price*int64(n) > cash {
			continue
		}
		if !exempt[c.ID] {
			_, w, err := g.selectBuyCerts(from, c.ID, n)
			if err != nil {
				continue
			}
			total := g.portfolios.CertWeight(playerKey, exempt).Add(w)
			if total.GreaterThan(g.rules.CertLimit) {
				continue
			}
		}
		amounts = append(amounts, n)
	}
	return amounts
}

func (g *Game) treasuryOptions(la *LegalActions) {
	r := g.round
	c := g.companies[r.Company]
	la.CanPass = true
	treasuryKey := model.TreasuryKey(c.ID)
	price, ok := g.market.PriceOf(c.ID)
	if !ok {
		return
	}

	if r.TreasuryMode != "sell" {
		cash := g.ledger.Balance(treasuryKey)
		held := g.portfolios.SharesOf(treasuryKey, c.ID)
		limit := g.treasuryLimitUnits(c)
		certs, err := g.portfolios.CompanyCertificates(model.Pool, c.ID)
		if err == nil {
			var sizes []int
			for _, cert := range certs {
				if !cert.President {
					sizes = append(sizes, cert.Shares)
				}
			}
			var amounts []int
			for _, n := range shares.Totals(sizes, c.TotalShares) {
				if held+n > limit || price*int64(n) > cash {
					continue
				}
				amounts = append(amounts, n)
			}
			if len(amounts) > 0 {
				la.Buys = append(la.Buys, BuyOption{Company: c.ID, From: model.Pool, Price: price, Amounts: amounts})
			}
		}
	}

	if r.TreasuryMode != "buy" {
		certs, err := g.portfolios.CompanyCertificates(treasuryKey, c.ID)
		if err == nil {
			var sizes []int
			for _, cert := range certs {
				if !cert.President {
					sizes = append(sizes, cert.Shares)
				}
			}
			poolRoom := g.poolLimitUnits(c) - g.portfolios.SharesOf(model.Pool, c.ID)
			var amounts []int
			for _, n := range shares.Totals(sizes, c.TotalShares) {
				if n > poolRoom {
					continue
				}
				amounts = append(amounts, n)
			}
			if len(amounts) > 0 {
				la.Sells = append(la.Sells, SellOption{Company: c.ID, Amounts: amounts, Price: price})
			}
		}
	}
}
