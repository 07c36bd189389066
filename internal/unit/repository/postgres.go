package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// PGRepository reads product unit families. DB is either the tenant pool or
// an open transaction.
type PGRepository struct {
	DB sqlx.ExtContext
}

func NewPGRepository(db sqlx.ExtContext) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	var p model.Product
	query := `
        SELECT id, store_id, sku, name, base_unit_id, packaging_unit_id,
               conversion_factor, track_inventory, is_active, created_at, updated_at
        FROM products WHERE id = $1
    `
	err := sqlx.GetContext(ctx, r.DB, &p, query, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", productID, apperror.ErrProductNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (r *PGRepository) HasStockHistory(ctx context.Context, productID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE product_id = $1)`
	if err := sqlx.GetContext(ctx, r.DB, &exists, query, productID); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PGRepository) UpdateConversionFactor(ctx context.Context, productID string, factor decimal.Decimal) error {
	// The NOT EXISTS guard keeps the freeze rule intact against a concurrent first stock row.
	query := `
        UPDATE products SET conversion_factor = $1, updated_at = NOW()
        WHERE id = $2
          AND NOT EXISTS (SELECT 1 FROM ledger_entries WHERE product_id = $2)
    `
	res, err := r.DB.ExecContext(ctx, query, factor, productID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetProduct(ctx, productID); err != nil {
			return err
		}
		return fmt.Errorf("product %s: %w", productID, apperror.ErrFactorLocked)
	}
	return nil
}
