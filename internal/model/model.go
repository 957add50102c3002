// Package model defines the core domain types shared across the trading engine:
// certificates, companies, players, and the holder keys that portfolios and
// the ledger are indexed by.
//
// Certificates are immutable value records. Ownership is never stored on the
// certificate itself; it lives exclusively in the portfolio indexes, so moving
// a certificate is a pure remove-from-one / insert-into-another operation.
package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// HolderKind discriminates the entities that can own certificates and cash.
type HolderKind string

const (
	HolderPlayer      HolderKind = "player"
	HolderTreasury    HolderKind = "treasury"
	HolderBank        HolderKind = "bank"
	HolderIPO         HolderKind = "ipo"
	HolderPool        HolderKind = "pool"
	HolderUnavailable HolderKind = "unavailable"
	HolderScrapHeap   HolderKind = "scrap"
)

// HolderKey identifies one portfolio. Owner carries the player or company ID
// for player/treasury holders and is empty for the bank's named areas.
type HolderKey struct {
	Kind  HolderKind `json:"kind"`
	Owner string     `json:"owner,omitempty"`
}

// Bank-operated holder keys. The bank itself is the inexhaustible cash
// source/sink; IPO, pool, unavailable and scrap are its certificate areas.
var (
	Bank        = HolderKey{Kind: HolderBank}
	IPO         = HolderKey{Kind: HolderIPO}
	Pool        = HolderKey{Kind: HolderPool}
	Unavailable = HolderKey{Kind: HolderUnavailable}
	ScrapHeap   = HolderKey{Kind: HolderScrapHeap}
)

// PlayerKey returns the holder key for a player's portfolio.
func PlayerKey(playerID string) HolderKey {
	return HolderKey{Kind: HolderPlayer, Owner: playerID}
}

// TreasuryKey returns the holder key for a company's own treasury.
func TreasuryKey(companyID string) HolderKey {
	return HolderKey{Kind: HolderTreasury, Owner: companyID}
}

func (k HolderKey) String() string {
	if k.Owner == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + ":" + k.Owner
}

// ParseHolderKey parses the String form of a holder key, used by snapshot
// restore.
func ParseHolderKey(s string) (HolderKey, error) {
	kind, owner, found := strings.Cut(s, ":")
	k := HolderKey{Kind: HolderKind(kind)}
	if found {
		k.Owner = owner
	}
	switch k.Kind {
	case HolderPlayer, HolderTreasury:
		if k.Owner == "" {
			return HolderKey{}, fmt.Errorf("holder key %q needs an owner", s)
		}
	case HolderBank, HolderIPO, HolderPool, HolderUnavailable, HolderScrapHeap:
		if k.Owner != "" {
			return HolderKey{}, fmt.Errorf("bank holder key %q must not carry an owner", s)
		}
	default:
		return HolderKey{}, fmt.Errorf("unknown holder kind %q", kind)
	}
	return k, nil
}

// IsBankArea reports whether the key names one of the bank's certificate
// areas (not a player, treasury, or the bank's cash account).
func (k HolderKey) IsBankArea() bool {
	switch k.Kind {
	case HolderIPO, HolderPool, HolderUnavailable, HolderScrapHeap:
		return true
	}
	return false
}

// Certificate is one unit of ownership of a percentage of a company.
// Created once during setup, never destroyed, never mutated.
type Certificate struct {
	ID      string `json:"id"`
	Company string `json:"company"`

	// Shares is the number of share units this certificate represents.
	// 1 for ordinary certificates; the president certificate carries the
	// company's largest standard unit (usually 2).
	Shares int `json:"shares"`

	President bool `json:"president,omitempty"`

	// Weight is how much the certificate counts toward the player
	// certificate limit. Fractional by rule in some games, hence decimal.
	Weight decimal.Decimal `json:"weight"`

	// InitiallyAvailable marks certificates that start in the IPO rather
	// than the unavailable area.
	InitiallyAvailable bool `json:"initially_available"`
}

// IPOPolicy selects how a company's initial price is fixed.
type IPOPolicy string

const (
	// IPOPar lets the starting player choose a par price from the grid's
	// start cells.
	IPOPar IPOPolicy = "par"
	// IPOFixed pins the company to a predefined starting price.
	IPOFixed IPOPolicy = "fixed"
)

// Company holds the mutable per-company game state. The occupied stock-market
// cell lives on the market grid; Started is true exactly when the company has
// a current price cell.
type Company struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// ShareUnit is the percentage represented by one share unit, e.g. 10.
	ShareUnit int `json:"share_unit"`
	// TotalShares is the number of share units summing to 100%.
	TotalShares int `json:"total_shares"`
	// PresidentShares is the unit size of the president certificate.
	PresidentShares int `json:"president_shares"`

	IPOPolicy  IPOPolicy `json:"ipo_policy"`
	FixedPrice int64     `json:"fixed_price,omitempty"`

	// FloatPercent is the share percentage that must leave the IPO before
	// the company floats and its treasury is capitalized.
	FloatPercent int `json:"float_percent"`
	// CapitalShares is the number of share units paid out at par on
	// flotation (full capitalization pays TotalShares × par).
	CapitalShares int `json:"capital_shares"`

	// CanClose permits the company to land on a closes-company cell.
	CanClose bool `json:"can_close"`

	Started  bool  `json:"started"`
	ParPrice int64 `json:"par_price,omitempty"`
	Floated  bool  `json:"floated"`
	Closed   bool  `json:"closed"`
}

// Player is created once at game start and persists; portfolio contents and
// cash live in the portfolio set.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Bankrupt bool   `json:"bankrupt"`
}

// SpecialProperty is a one-shot entitlement a player may exercise during a
// trading round. Its concrete effect belongs to collaborators outside this
// engine; the round only offers and consumes it.
type SpecialProperty struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Player string `json:"player"`
	Used   bool   `json:"used"`
}

// CertID builds the stable certificate identity used for display and
// persistence: "<company>-<ordinal>", the president certificate being
// ordinal 0.
func CertID(companyID string, ordinal int) string {
	return fmt.Sprintf("%s-%d", companyID, ordinal)
}
