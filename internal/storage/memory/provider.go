package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/storage"
	"github.com/fekuna/omnipos-stock-service/internal/tenant"
)

// Provider hands out one Store per tenant after checking the directory the
// same way the connection router does.
type Provider struct {
	dir    tenant.Directory
	mu     sync.Mutex
	stores map[string]*Store
}

func NewProvider(dir tenant.Directory) *Provider {
	return &Provider{dir: dir, stores: map[string]*Store{}}
}

func (p *Provider) Store(ctx context.Context, tenantID string) (storage.Store, error) {
	t, err := p.dir.Lookup(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		return nil, fmt.Errorf("tenant %s is %s: %w", tenantID, t.Status, apperror.ErrTenantUnavailable)
	}
	return p.Tenant(tenantID), nil
}

// Tenant returns the tenant's store, creating it empty on first use.
func (p *Provider) Tenant(tenantID string) *Store {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stores[tenantID]
	if !ok {
		s = New()
		p.stores[tenantID] = s
	}
	return s
}
