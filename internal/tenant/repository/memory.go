package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

// MemoryDirectory backs local development and tests when no catalog DB exists.
type MemoryDirectory struct {
	mu      sync.RWMutex
	tenants map[string]model.Tenant
}

func NewMemoryDirectory(tenants ...model.Tenant) *MemoryDirectory {
	d := &MemoryDirectory{tenants: make(map[string]model.Tenant, len(tenants))}
	for _, t := range tenants {
		d.tenants[t.ID] = t
	}
	return d
}

func (d *MemoryDirectory) Lookup(_ context.Context, tenantID string) (*model.Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, apperror.ErrTenantNotFound)
	}
	return &t, nil
}

// Put inserts or replaces a tenant record.
func (d *MemoryDirectory) Put(t model.Tenant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tenants[t.ID] = t
}

func (d *MemoryDirectory) SetStatus(tenantID string, status model.TenantStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tenants[tenantID]; ok {
		t.Status = status
		d.tenants[tenantID] = t
	}
}
