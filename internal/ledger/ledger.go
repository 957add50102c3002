// Package ledger tracks the currency side of every certificate transfer.
// Money only moves through Move, so a cash movement can always be paired with
// the certificate movement it settles and inverted by an external change log.
package ledger

import (
	"errors"
	"fmt"

	"github.com/Rails-18xx/Rails-sub009/internal/model"
	"github.com/Rails-18xx/Rails-sub009/internal/portfolio"
)

// ErrNegativeAmount is returned for negative movement amounts; direction is
// expressed by swapping from and to, never by sign.
var ErrNegativeAmount = errors.New("ledger: amount must not be negative")

// Ledger moves cash between holder purses. The bank is an inexhaustible
// source and sink.
type Ledger struct {
	portfolios *portfolio.Set
	symbol     string
}

// New creates a ledger over the game's portfolio set. symbol is the display
// currency prefix, e.g. "$".
func New(portfolios *portfolio.Set, symbol string) *Ledger {
	return &Ledger{portfolios: portfolios, symbol: symbol}
}

// Move transfers amount from one holder to another. Both holders are resolved
// before any balance changes, so a failed move leaves both purses untouched.
func (l *Ledger) Move(amount int64, from, to model.HolderKey) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAmount, amount)
	}
	if _, err := l.portfolios.Get(from); err != nil {
		return err
	}
	if _, err := l.portfolios.Get(to); err != nil {
		return err
	}
	if err := l.portfolios.Debit(from, amount); err != nil {
		return err
	}
	if err := l.portfolios.Credit(to, amount); err != nil {
		// Credit only fails for unknown holders, which was checked above.
		return err
	}
	return nil
}

// Balance returns a holder's purse contents.
func (l *Ledger) Balance(key model.HolderKey) int64 {
	p, err := l.portfolios.Get(key)
	if err != nil {
		return 0
	}
	return p.Cash()
}

// Symbol returns the display currency prefix.
func (l *Ledger) Symbol() string { return l.symbol }

// Format renders an amount for display.
func (l *Ledger) Format(amount int64) string {
	if amount < 0 {
		return fmt.Sprintf("-%s%d", l.symbol, -amount)
	}
	return fmt.Sprintf("%s%d", l.symbol, amount)
}
