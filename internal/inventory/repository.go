package inventory

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/shopspring/decimal"
)

// Repository is the set of atomic ledger primitives. Every method runs on
// whatever connection or transaction the implementation is bound to; none of
// them reads and then writes in separate round trips.
type Repository interface {
	// Ledger rows
	Get(ctx context.Context, key model.LedgerKey) (*model.LedgerEntry, error)
	ListByStore(ctx context.Context, storeID string) ([]model.LedgerEntry, error)
	Increment(ctx context.Context, key model.LedgerKey, delta decimal.Decimal) (decimal.Decimal, error)
	// DecrementIfAvailable reports false and changes nothing when the row is
	// missing or holds less than delta.
	DecrementIfAvailable(ctx context.Context, key model.LedgerKey, delta decimal.Decimal) (decimal.Decimal, bool, error)

	// Primary counters
	AdjustCounter(ctx context.Context, productID, storeID string, delta decimal.Decimal) error
	Counters(ctx context.Context, storeID string) ([]model.StockCounter, error)

	// Exclusion for store-wide reconciliation, released at transaction end.
	TryLockStore(ctx context.Context, storeID string) (bool, error)

	// Movements / Audit
	LogMovement(ctx context.Context, movement *model.InventoryMovement) error
	LogConversion(ctx context.Context, entry *model.UnitConversionLog) error
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.InventoryMovement, error)
	ListConversions(ctx context.Context, filters *dto.ConversionFilters) ([]model.UnitConversionLog, error)
}
