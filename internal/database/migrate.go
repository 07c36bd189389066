package database

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jmoiron/sqlx"
)

//go:embed schema/tenant.sql
var tenantSchema string

// TenantSchema returns the DDL applied to every tenant database.
func TenantSchema() string {
	return tenantSchema
}

// MigrateTenant applies the tenant schema. Every statement is idempotent.
func MigrateTenant(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, tenantSchema); err != nil {
		return fmt.Errorf("apply tenant schema: %w", err)
	}
	return nil
}
