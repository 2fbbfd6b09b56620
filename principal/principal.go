// Package principal defines the identity collaborator that function and
// method targets run on behalf of.
package principal

import (
	"context"
	"sync"

	"github.com/xraph/jobqueue"
)

// Principal is an identity a job runs as.
type Principal struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Admin bool   `json:"admin,omitempty"`
}

// Resolver maps a principal id to a Principal. Implementations return
// jobqueue.ErrPrincipalNotFound for unknown ids.
type Resolver interface {
	ResolvePrincipal(ctx context.Context, principalID string) (*Principal, error)
}

var _ Resolver = (*Directory)(nil)

// Directory is an in-memory Resolver. It is safe for concurrent use.
type Directory struct {
	mu         sync.RWMutex
	principals map[string]*Principal
}

// NewDirectory creates a Directory seeded with ps.
func NewDirectory(ps ...*Principal) *Directory {
	d := &Directory{principals: make(map[string]*Principal, len(ps))}
	for _, p := range ps {
		d.Add(p)
	}
	return d
}

// Add registers or replaces a principal.
func (d *Directory) Add(p *Principal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *p
	d.principals[p.ID] = &cp
}

// Remove deletes a principal.
func (d *Directory) Remove(principalID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.principals, principalID)
}

// ResolvePrincipal returns a copy of the principal with the given id.
func (d *Directory) ResolvePrincipal(_ context.Context, principalID string) (*Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.principals[principalID]
	if !ok {
		return nil, jobqueue.ErrPrincipalNotFound
	}
	cp := *p
	return &cp, nil
}

// Func adapts a plain function to Resolver.
type Func func(ctx context.Context, principalID string) (*Principal, error)

// ResolvePrincipal calls f.
func (f Func) ResolvePrincipal(ctx context.Context, principalID string) (*Principal, error) {
	return f(ctx, principalID)
}
