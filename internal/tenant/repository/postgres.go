package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/jmoiron/sqlx"
)

type PGDirectory struct {
	DB *sqlx.DB
}

func NewPGDirectory(db *sqlx.DB) *PGDirectory {
	return &PGDirectory{DB: db}
}

func (r *PGDirectory) Lookup(ctx context.Context, tenantID string) (*model.Tenant, error) {
	if tenantID == "" {
		return nil, apperror.ErrTenantNotFound
	}

	var t model.Tenant
	query := `SELECT id, name, database_endpoint, status FROM tenants WHERE id = $1`
	err := r.DB.GetContext(ctx, &t, query, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tenant %s: %w", tenantID, apperror.ErrTenantNotFound)
		}
		return nil, fmt.Errorf("lookup tenant %s: %w", tenantID, err)
	}
	return &t, nil
}
