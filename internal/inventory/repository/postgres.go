package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// PGRepository implements the ledger primitives as single statements. DB is
// normally the *sqlx.Tx of the surrounding unit of work.
type PGRepository struct {
	DB sqlx.ExtContext
}

func NewPGRepository(db sqlx.ExtContext) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) Get(ctx context.Context, key model.LedgerKey) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	query := `
        SELECT product_id, store_id, unit_id, quantity, updated_at
        FROM ledger_entries
        WHERE product_id = $1 AND store_id = $2 AND unit_id = $3
    `
	err := sqlx.GetContext(ctx, r.DB, &e, query, key.ProductID, key.StoreID, key.UnitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // no row means zero on hand
		}
		return nil, err
	}
	return &e, nil
}

func (r *PGRepository) ListByStore(ctx context.Context, storeID string) ([]model.LedgerEntry, error) {
	var items []model.LedgerEntry
	query := `
        SELECT product_id, store_id, unit_id, quantity, updated_at
        FROM ledger_entries
        WHERE store_id = $1
        ORDER BY product_id, unit_id
    `
	err := sqlx.SelectContext(ctx, r.DB, &items, query, storeID)
	return items, err
}

func (r *PGRepository) Increment(ctx context.Context, key model.LedgerKey, delta decimal.Decimal) (decimal.Decimal, error) {
	var after decimal.Decimal
	query := `
        INSERT INTO ledger_entries (product_id, store_id, unit_id, quantity, updated_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (product_id, store_id, unit_id)
        DO UPDATE SET
            quantity = ledger_entries.quantity + EXCLUDED.quantity,
            updated_at = EXCLUDED.updated_at
        RETURNING quantity
    `
	err := r.DB.QueryRowxContext(ctx, query, key.ProductID, key.StoreID, key.UnitID, delta).Scan(&after)
	if err != nil {
		return decimal.Zero, fmt.Errorf("increment ledger: %w", err)
	}
	return after, nil
}

func (r *PGRepository) DecrementIfAvailable(ctx context.Context, key model.LedgerKey, delta decimal.Decimal) (decimal.Decimal, bool, error) {
	var after decimal.Decimal
	query := `
        UPDATE ledger_entries
        SET quantity = quantity - $1, updated_at = NOW()
        WHERE product_id = $2 AND store_id = $3 AND unit_id = $4
          AND quantity >= $1
        RETURNING quantity
    `
	err := r.DB.QueryRowxContext(ctx, query, delta, key.ProductID, key.StoreID, key.UnitID).Scan(&after)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("decrement ledger: %w", err)
	}
	return after, true, nil
}

func (r *PGRepository) AdjustCounter(ctx context.Context, productID, storeID string, delta decimal.Decimal) error {
	query := `
        INSERT INTO stock_counters (product_id, store_id, quantity, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (product_id, store_id)
        DO UPDATE SET
            quantity = stock_counters.quantity + EXCLUDED.quantity,
            updated_at = EXCLUDED.updated_at
    `
	_, err := r.DB.ExecContext(ctx, query, productID, storeID, delta)
	if err != nil {
		return fmt.Errorf("adjust counter: %w", err)
	}
	return nil
}

func (r *PGRepository) Counters(ctx context.Context, storeID string) ([]model.StockCounter, error) {
	var items []model.StockCounter
	query := `
        SELECT product_id, store_id, quantity, updated_at
        FROM stock_counters
        WHERE store_id = $1
        ORDER BY product_id
    `
	err := sqlx.SelectContext(ctx, r.DB, &items, query, storeID)
	return items, err
}

func (r *PGRepository) TryLockStore(ctx context.Context, storeID string) (bool, error) {
	var ok bool
	query := `SELECT pg_try_advisory_xact_lock(hashtext('stock-sync:' || $1))`
	if err := sqlx.GetContext(ctx, r.DB, &ok, query, storeID); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *PGRepository) LogMovement(ctx context.Context, m *model.InventoryMovement) error {
	query := `
        INSERT INTO inventory_movements (
            id, store_id, product_id, unit_id,
            movement_type, quantity_change, quantity_before, quantity_after,
            reference_type, reference_id, notes, created_by, created_at
        )
        VALUES (
            :id, :store_id, :product_id, :unit_id,
            :movement_type, :quantity_change, :quantity_before, :quantity_after,
            :reference_type, :reference_id, :notes, :created_by, :created_at
        )
    `
	_, err := sqlx.NamedExecContext(ctx, r.DB, query, m)
	if err != nil {
		return fmt.Errorf("failed to log movement: %w", err)
	}
	return nil
}

func (r *PGRepository) LogConversion(ctx context.Context, c *model.UnitConversionLog) error {
	query := `
        INSERT INTO unit_conversion_logs (
            id, store_id, product_id, from_unit_id, to_unit_id, kind,
            packages_converted, conversion_factor,
            packaging_qty_before, packaging_qty_after, base_qty_before, base_qty_after,
            reference_id, created_at
        )
        VALUES (
            :id, :store_id, :product_id, :from_unit_id, :to_unit_id, :kind,
            :packages_converted, :conversion_factor,
            :packaging_qty_before, :packaging_qty_after, :base_qty_before, :base_qty_after,
            :reference_id, :created_at
        )
    `
	_, err := sqlx.NamedExecContext(ctx, r.DB, query, c)
	if err != nil {
		return fmt.Errorf("failed to log conversion: %w", err)
	}
	return nil
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.InventoryMovement, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.StoreID != "" {
		conditions = append(conditions, "store_id = :store_id")
		args["store_id"] = f.StoreID
	}
	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.MovementType != "" {
		conditions = append(conditions, "movement_type = :movement_type")
		args["movement_type"] = f.MovementType
	}
	if f.ReferenceID != "" {
		conditions = append(conditions, "reference_id = :reference_id")
		args["reference_id"] = f.ReferenceID
	}
	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= :start_date")
		args["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		conditions = append(conditions, "created_at < :end_date")
		args["end_date"] = *f.EndDate
	}

	query := "SELECT * FROM inventory_movements" + where(conditions) + " ORDER BY created_at DESC, id"
	query += page(f.Page, f.PageSize)

	var items []model.InventoryMovement
	err := r.selectNamed(ctx, &items, query, args)
	return items, err
}

func (r *PGRepository) ListConversions(ctx context.Context, f *dto.ConversionFilters) ([]model.UnitConversionLog, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.StoreID != "" {
		conditions = append(conditions, "store_id = :store_id")
		args["store_id"] = f.StoreID
	}
	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.Kind != "" {
		conditions = append(conditions, "kind = :kind")
		args["kind"] = f.Kind
	}

	query := "SELECT * FROM unit_conversion_logs" + where(conditions) + " ORDER BY created_at DESC, id"
	query += page(f.Page, f.PageSize)

	var items []model.UnitConversionLog
	err := r.selectNamed(ctx, &items, query, args)
	return items, err
}

func (r *PGRepository) selectNamed(ctx context.Context, dest interface{}, query string, args map[string]interface{}) error {
	q, bound, err := sqlx.Named(query, args)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, r.DB, dest, r.DB.Rebind(q), bound...)
}

func where(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func page(p, size int) string {
	if size <= 0 {
		return ""
	}
	if p < 1 {
		p = 1
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", size, (p-1)*size)
}
