// Package portfolio implements the holder containers of the engine: each
// player, company treasury, and bank area owns one Portfolio holding a set of
// certificates and a cash purse.
//
// A Set owns every portfolio of one game plus the owner index that guarantees
// a certificate is held by exactly one holder at a time. All transfers go
// through the Set so the index can never drift from the per-portfolio maps.
package portfolio

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Rails-18xx/Rails-sub009/internal/model"
)

var (
	// ErrUnknownHolder is returned when a holder key has no portfolio.
	ErrUnknownHolder = errors.New("portfolio: unknown holder")

	// ErrCertificateNotHeld is returned when a transfer names a certificate
	// the source holder does not own. Callers treat an unexpected instance
	// of this as state corruption.
	ErrCertificateNotHeld = errors.New("portfolio: certificate not held by source")

	// ErrInsufficientCash is returned when a debit exceeds a non-bank
	// holder's purse.
	ErrInsufficientCash = errors.New("portfolio: insufficient cash")
)

// Portfolio is one holder's certificates and cash.
type Portfolio struct {
	key   model.HolderKey
	cash  int64
	certs map[string]struct{}
}

// Key returns the holder key this portfolio belongs to.
func (p *Portfolio) Key() model.HolderKey { return p.key }

// Cash returns the current purse contents. The bank's purse is notional;
// see Set.Credit/Debit.
func (p *Portfolio) Cash() int64 { return p.cash }

// Holds reports whether the portfolio contains the certificate.
func (p *Portfolio) Holds(certID string) bool {
	_, ok := p.certs[certID]
	return ok
}

// Set owns all portfolios of one game.
type Set struct {
	registry   *model.Registry
	portfolios map[model.HolderKey]*Portfolio
	ownerOf    map[string]model.HolderKey
}

// NewSet creates a portfolio set backed by the given certificate registry.
// The bank areas are created eagerly; player and treasury portfolios are
// added during setup.
func NewSet(registry *model.Registry) *Set {
	s := &Set{
		registry:   registry,
		portfolios: make(map[model.HolderKey]*Portfolio),
		ownerOf:    make(map[string]model.HolderKey),
	}
	for _, k := range []model.HolderKey{model.Bank, model.IPO, model.Pool, model.Unavailable, model.ScrapHeap} {
		s.portfolios[k] = &Portfolio{key: k, certs: make(map[string]struct{})}
	}
	return s
}

// Create adds a portfolio for a player or treasury holder.
func (s *Set) Create(key model.HolderKey) (*Portfolio, error) {
	if _, ok := s.portfolios[key]; ok {
		return nil, fmt.Errorf("portfolio for %s already exists", key)
	}
	p := &Portfolio{key: key, certs: make(map[string]struct{})}
	s.portfolios[key] = p
	return p, nil
}

// Get returns the portfolio for a holder key.
func (s *Set) Get(key model.HolderKey) (*Portfolio, error) {
	p, ok := s.portfolios[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHolder, key)
	}
	return p, nil
}

// OwnerOf returns the holder currently owning the certificate.
func (s *Set) OwnerOf(certID string) (model.HolderKey, bool) {
	k, ok := s.ownerOf[certID]
	return k, ok
}

// Place assigns an unowned certificate to a holder. Used only during setup;
// after setup every change of ownership goes through MoveCertificate.
func (s *Set) Place(certID string, to model.HolderKey) error {
	if owner, ok := s.ownerOf[certID]; ok {
		return fmt.Errorf("certificate %s already held by %s", certID, owner)
	}
	p, err := s.Get(to)
	if err != nil {
		return err
	}
	p.certs[certID] = struct{}{}
	s.ownerOf[certID] = to
	return nil
}

// MoveCertificate transfers one certificate between holders. The move is
// atomic: it either completes or leaves both portfolios untouched.
func (s *Set) MoveCertificate(certID string, from, to model.HolderKey) error {
	src, err := s.Get(from)
	if err != nil {
		return err
	}
	dst, err := s.Get(to)
	if err != nil {
		return err
	}
	if !src.Holds(certID) {
		return fmt.Errorf("%w: %s not in %s", ErrCertificateNotHeld, certID, from)
	}
	delete(src.certs, certID)
	dst.certs[certID] = struct{}{}
	s.ownerOf[certID] = to
	return nil
}

// Credit adds cash to a holder's purse. Crediting the bank is a no-op on the
// balance: the bank is an inexhaustible sink.
func (s *Set) Credit(key model.HolderKey, amount int64) error {
	p, err := s.Get(key)
	if err != nil {
		return err
	}
	if key.Kind == model.HolderBank {
		return nil
	}
	p.cash += amount
	return nil
}

// Debit removes cash from a holder's purse. The bank is an inexhaustible
// source and is never short.
func (s *Set) Debit(key model.HolderKey, amount int64) error {
	p, err := s.Get(key)
	if err != nil {
		return err
	}
	if key.Kind == model.HolderBank {
		return nil
	}
	if p.cash < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientCash, key, p.cash, amount)
	}
	p.cash -= amount
	return nil
}

// SetCash overwrites a holder's purse. Setup and snapshot restore only.
func (s *Set) SetCash(key model.HolderKey, amount int64) error {
	p, err := s.Get(key)
	if err != nil {
		return err
	}
	p.cash = amount
	return nil
}

// Certificates returns a holder's certificates sorted by ID for determinism.
func (s *Set) Certificates(key model.HolderKey) ([]model.Certificate, error) {
	p, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	certs := make([]model.Certificate, 0, len(p.certs))
	for id := range p.certs {
		c, ok := s.registry.Get(id)
		if !ok {
			return nil, fmt.Errorf("certificate %s held by %s is not registered", id, key)
		}
		certs = append(certs, c)
	}
	sort.Slice(certs, func(i, j int) bool { return certs[i].ID < certs[j].ID })
	return certs, nil
}

// CompanyCertificates returns a holder's certificates of one company, sorted
// by share size ascending then ID, the order the combinatorics engine expects.
func (s *Set) CompanyCertificates(key model.HolderKey, companyID string) ([]model.Certificate, error) {
	all, err := s.Certificates(key)
	if err != nil {
		return nil, err
	}
	var certs []model.Certificate
	for _, c := range all {
		if c.Company == companyID {
			certs = append(certs, c)
		}
	}
	sort.Slice(certs, func(i, j int) bool {
		if certs[i].Shares != certs[j].Shares {
			return certs[i].Shares < certs[j].Shares
		}
		return certs[i].ID < certs[j].ID
	})
	return certs, nil
}

// SharesOf returns a holder's total share units in one company.
func (s *Set) SharesOf(key model.HolderKey, companyID string) int {
	certs, err := s.CompanyCertificates(key, companyID)
	if err != nil {
		return 0
	}
	total := 0
	for _, c := range certs {
		total += c.Shares
	}
	return total
}

// HasPresidency reports whether a holder owns the president certificate of
// the company.
func (s *Set) HasPresidency(key model.HolderKey, companyID string) bool {
	certs, err := s.CompanyCertificates(key, companyID)
	if err != nil {
		return false
	}
	for _, c := range certs {
		if c.President {
			return true
		}
	}
	return false
}

// CertWeight sums the certificate-count weights of a holder's certificates,
// skipping companies in the exempt set (companies occupying no-certificate-
// limit cells do not count toward the limit).
func (s *Set) CertWeight(key model.HolderKey, exempt map[string]bool) decimal.Decimal {
	certs, err := s.Certificates(key)
	if err != nil {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, c := range certs {
		if exempt[c.Company] {
			continue
		}
		total = total.Add(c.Weight)
	}
	return total
}
