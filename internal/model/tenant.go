package model

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantDeleted   TenantStatus = "deleted"
)

// Tenant is one isolated business as recorded in the shared catalog.
type Tenant struct {
	ID       string       `db:"id" json:"id"`
	Name     string       `db:"name" json:"name"`
	Endpoint string       `db:"database_endpoint" json:"database_endpoint"` // DSN of the tenant database
	Status   TenantStatus `db:"status" json:"status"`
}

func (t *Tenant) IsActive() bool {
	return t != nil && t.Status == TenantActive
}
