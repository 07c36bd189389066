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

const saleColumns = `id, store_id, invoice_number, status, subtotal, discount, tax, total,
               cashier_id, created_at, updated_at`

const itemColumns = `id, sale_id, line_no, product_id, unit_id, quantity, price,
               refunded_quantity, created_at`

type PGRepository struct {
	DB sqlx.ExtContext
}

func NewPGRepository(db sqlx.ExtContext) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) NextInvoiceSequence(ctx context.Context, storeID string) (int64, error) {
	var seq int64
	// The upsert row lock serialises concurrent sales of one store.
	query := `
        INSERT INTO invoice_sequences (store_id, last_value) VALUES ($1, 1)
        ON CONFLICT (store_id)
        DO UPDATE SET last_value = invoice_sequences.last_value + 1
        RETURNING last_value
    `
	if err := r.DB.QueryRowxContext(ctx, query, storeID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next invoice sequence: %w", err)
	}
	return seq, nil
}

func (r *PGRepository) InsertHeader(ctx context.Context, s *model.Sale) (bool, error) {
	query := `
        INSERT INTO sales (
            id, store_id, invoice_number, status, subtotal, discount, tax, total,
            cashier_id, created_at, updated_at
        )
        VALUES (
            :id, :store_id, :invoice_number, :status, :subtotal, :discount, :tax, :total,
            :cashier_id, :created_at, :updated_at
        )
        ON CONFLICT (id) DO NOTHING
    `
	res, err := sqlx.NamedExecContext(ctx, r.DB, query, s)
	if err != nil {
		return false, fmt.Errorf("failed to insert sale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PGRepository) InsertItem(ctx context.Context, item *model.SaleItem) error {
	query := `
        INSERT INTO sale_items (
            id, sale_id, line_no, product_id, unit_id, quantity, price,
            refunded_quantity, created_at
        )
        VALUES (
            :id, :sale_id, :line_no, :product_id, :unit_id, :quantity, :price,
            :refunded_quantity, :created_at
        )
    `
	if _, err := sqlx.NamedExecContext(ctx, r.DB, query, item); err != nil {
		return fmt.Errorf("failed to insert sale item %d: %w", item.LineNo, err)
	}
	return nil
}

func (r *PGRepository) GetByID(ctx context.Context, saleID string) (*model.Sale, error) {
	return r.load(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, saleID)
}

func (r *PGRepository) LockForUpdate(ctx context.Context, saleID string) (*model.Sale, error) {
	return r.load(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, saleID)
}

func (r *PGRepository) load(ctx context.Context, query, saleID string) (*model.Sale, error) {
	var s model.Sale
	if err := sqlx.GetContext(ctx, r.DB, &s, query, saleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sale %s: %w", saleID, apperror.ErrSaleNotFound)
		}
		return nil, err
	}

	itemsQuery := `SELECT ` + itemColumns + ` FROM sale_items WHERE sale_id = $1 ORDER BY line_no`
	if err := sqlx.SelectContext(ctx, r.DB, &s.Items, itemsQuery, saleID); err != nil {
		return nil, fmt.Errorf("load sale items: %w", err)
	}
	return &s, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, saleID string, status model.SaleStatus) error {
	query := `UPDATE sales SET status = $1, updated_at = NOW() WHERE id = $2`
	res, err := r.DB.ExecContext(ctx, query, status, saleID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sale %s: %w", saleID, apperror.ErrSaleNotFound)
	}
	return nil
}

func (r *PGRepository) UpdateItemRefunded(ctx context.Context, itemID string, refunded decimal.Decimal) error {
	query := `
        UPDATE sale_items SET refunded_quantity = $1
        WHERE id = $2 AND $1 <= quantity
    `
	res, err := r.DB.ExecContext(ctx, query, refunded, itemID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sale item %s: %w", itemID, apperror.ErrInvalidRefund)
	}
	return nil
}
