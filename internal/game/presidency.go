package game

import (
	"fmt"

	"github.com/Rails-18xx/Rails-sub009/internal/model"
	"github.com/Rails-18xx/Rails-sub009/internal/shares"
)

// presidentCert returns a company's president certificate.
func (g *Game) presidentCert(companyID string) (string, model.Certificate, error) {
	for _, cert := range g.registry.Company(companyID) {
		if cert.President {
			return cert.ID, cert, nil
		}
	}
	return "", model.Certificate{}, fmt.Errorf("%w: company %s has no president certificate", ErrCorruptState, companyID)
}

// combinationFrom picks the fewest non-president certificates of the company
// held by holder that sum exactly to units.
func (g *Game) combinationFrom(holder model.HolderKey, companyID string, units int) ([]string, error) {
	certs, err := g.portfolios.CompanyCertificates(holder, companyID)
	if err != nil {
		return nil, err
	}
	var ordinary []model.Certificate
	for _, c := range certs {
		if !c.President {
			ordinary = append(ordinary, c)
		}
	}
	sizes := make([]int, len(ordinary))
	for i, c := range ordinary {
		sizes[i] = c.Shares
	}
	sel, err := shares.MinCombination(sizes, units)
	if err != nil {
		return nil, ErrNoCombination
	}
	ids := make([]string, 0, len(sel))
	for _, i := range sel {
		ids = append(ids, ordinary[i].ID)
	}
	return ids, nil
}

// maybeTransferPresidency hands the president certificate to a buyer who now
// strictly out-holds the president. The exchange is direct between the two
// players: the buyer sends ordinary certificates matching the president
// certificate's unit size and receives the title.
func (g *Game) maybeTransferPresidency(c *model.Company, gainerID string, changes *[]Change) error {
	president, err := g.presidentOf(c.ID)
	if err != nil {
		return err
	}
	if president == gainerID {
		return nil
	}
	gKey, pKey := model.PlayerKey(gainerID), model.PlayerKey(president)
	if g.portfolios.SharesOf(gKey, c.ID) <= g.portfolios.SharesOf(pKey, c.ID) {
		return nil
	}
	swap, err := g.combinationFrom(gKey, c.ID, c.PresidentShares)
	if err != nil {
		// Indivisible multi-unit certificates can leave the buyer unable
		// to form the exchange; the title stays put.
		return nil
	}
	presCertID, _, err := g.presidentCert(c.ID)
	if err != nil {
		return err
	}
	for _, id := range swap {
		if err := g.moveCert(id, gKey, pKey, changes); err != nil {
			return err
		}
	}
	if err := g.moveCert(presCertID, pKey, gKey, changes); err != nil {
		return err
	}
	g.log.Info("presidency transferred", "company", c.ID, "from", president, "to", gainerID)
	return nil
}

// dumpPlan is the fully validated script for a presidency dump. All selections
// are made before any mutation; execution only replays them.
type dumpPlan struct {
	NewPresident    string
	PresidentCertID string
	// SwapCertIDs move from the new president to the pool in exchange for
	// the president certificate.
	SwapCertIDs []string
	// ReturnCertIDs move from the pool back to the seller: certificates the
	// pool held before the action, covering units the seller keeps.
	ReturnCertIDs []string
	// PresidentUnitsSold is how many of the president certificate's units
	// the seller is selling rather than retaining.
	PresidentUnitsSold int
	// ForfeitedUnits are president-certificate units the seller meant to
	// keep but the pre-action pool could not cover; they are sold into the
	// pool along with the rest.
	ForfeitedUnits int
}

// findNewPresident picks the replacement president for a dump: scanning
// seating order after the seller, the eligible player with strictly the most
// units, ties going to the earliest scanned. Eligible means out-holding the
// seller's post-sale position, holding at least the president certificate's
// unit size, and being able to form the exchange combination.
func (g *Game) findNewPresident(sellerID string, c *model.Company, postSale int) (string, []string, error) {
	start := g.playerIndex(sellerID)
	if start < 0 {
		return "", nil, ErrUnknownPlayer
	}
	bestUnits := 0
	var bestID string
	var bestSwap []string
	for i := 1; i <= len(g.players); i++ {
		p := g.players[(start+i)%len(g.players)]
		if p.ID == sellerID || p.Bankrupt {
			continue
		}
		units := g.portfolios.SharesOf(model.PlayerKey(p.ID), c.ID)
		if units <= postSale || units < c.PresidentShares || units <= bestUnits {
			continue
		}
		swap, err := g.combinationFrom(model.PlayerKey(p.ID), c.ID, c.PresidentShares)
		if err != nil {
			continue
		}
		bestUnits, bestID, bestSwap = units, p.ID, swap
	}
	if bestID == "" {
		return "", nil, ErrNoPresident
	}
	return bestID, bestSwap, nil
}

// planDump validates a sale large enough to cost the seller the presidency.
// The sold amount splits into o ordinary units and p president-certificate
// units; the plan prefers the smallest feasible p. Retained units are covered
// only by certificates the pool held before the action; units it cannot cover
// are sold as well. Returns the dump script and the ordinary certificates
// sold.
func (g *Game) planDump(sellerID string, c *model.Company, amount int, ordinary []model.Certificate) (*dumpPlan, []string, error) {
	sellerKey := model.PlayerKey(sellerID)
	postSale := g.portfolios.SharesOf(sellerKey, c.ID) - amount

	newPres, swapIDs, err := g.findNewPresident(sellerID, c, postSale)
	if err != nil {
		return nil, nil, err
	}
	presCertID, _, err := g.presidentCert(c.ID)
	if err != nil {
		return nil, nil, err
	}

	ordinarySizes := make([]int, len(ordinary))
	ordinaryTotal := 0
	for i, cert := range ordinary {
		ordinarySizes[i] = cert.Shares
		ordinaryTotal += cert.Shares
	}

	// Return candidates are restricted to what the pool holds right now; the
	// new president's swapped-in certificates never come back to the seller.
	var candidates []model.Certificate
	poolCerts, err := g.portfolios.CompanyCertificates(model.Pool, c.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, pc := range poolCerts {
		if !pc.President {
			candidates = append(candidates, pc)
		}
	}
	candidateSizes := make([]int, len(candidates))
	for i, cert := range candidates {
		candidateSizes[i] = cert.Shares
	}

	for p := 0; p <= c.PresidentShares && p <= amount; p++ {
		o := amount - p
		if o > ordinaryTotal {
			continue
		}
		ordinarySel, err := shares.MinCombination(ordinarySizes, o)
		if err != nil {
			continue
		}
		retained := c.PresidentShares - p
		returnable := 0
		for _, total := range shares.Totals(candidateSizes, retained) {
			returnable = total
		}
		returnSel, err := shares.MinCombination(candidateSizes, returnable)
		if err != nil {
			continue
		}
		plan := &dumpPlan{
			NewPresident:       newPres,
			PresidentCertID:    presCertID,
			SwapCertIDs:        swapIDs,
			PresidentUnitsSold: p,
			ForfeitedUnits:     retained - returnable,
		}
		for _, i := range returnSel {
			plan.ReturnCertIDs = append(plan.ReturnCertIDs, candidates[i].ID)
		}
		soldIDs := make([]string, 0, len(ordinarySel))
		for _, i := range ordinarySel {
			soldIDs = append(soldIDs, ordinary[i].ID)
		}
		return plan, soldIDs, nil
	}
	return nil, nil, ErrNoCombination
}
