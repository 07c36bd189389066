package tenant

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

// Directory is the read-only view of the shared tenant catalog.
// Lookup returns apperror.ErrTenantNotFound when the id is unknown.
type Directory interface {
	Lookup(ctx context.Context, tenantID string) (*model.Tenant, error)
}
