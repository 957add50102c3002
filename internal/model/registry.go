package model

import "fmt"

// Registry is the id-based certificate lookup owned by the game root. It is
// passed explicitly to the components that need it; there is no process-wide
// registry.
type Registry struct {
	certs     map[string]Certificate
	byCompany map[string][]string
}

// NewRegistry creates an empty certificate registry.
func NewRegistry() *Registry {
	return &Registry{
		certs:     make(map[string]Certificate),
		byCompany: make(map[string][]string),
	}
}

// Add registers a certificate. Registration happens once during setup;
// duplicate IDs are a setup bug.
func (r *Registry) Add(c Certificate) error {
	if _, ok := r.certs[c.ID]; ok {
		return fmt.Errorf("certificate %s already registered", c.ID)
	}
	r.certs[c.ID] = c
	r.byCompany[c.Company] = append(r.byCompany[c.Company], c.ID)
	return nil
}

// Get returns the certificate with the given ID.
func (r *Registry) Get(id string) (Certificate, bool) {
	c, ok := r.certs[id]
	return c, ok
}

// Company returns all certificates of one company in registration order
// (the president certificate first, by setup convention).
func (r *Registry) Company(companyID string) []Certificate {
	ids := r.byCompany[companyID]
	certs := make([]Certificate, 0, len(ids))
	for _, id := range ids {
		certs = append(certs, r.certs[id])
	}
	return certs
}

// TotalShares sums the share units of all certificates registered for a
// company. Used by the conservation audit.
func (r *Registry) TotalShares(companyID string) int {
	total := 0
	for _, id := range r.byCompany[companyID] {
		total += r.certs[id].Shares
	}
	return total
}

// Len returns the number of registered certificates.
func (r *Registry) Len() int {
	return len(r.certs)
}
