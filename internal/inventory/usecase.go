package inventory

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/shopspring/decimal"
)

type UseCase interface {
	Available(ctx context.Context, tenantID string, key model.LedgerKey) (decimal.Decimal, error)
	Add(ctx context.Context, tenantID string, key model.LedgerKey, delta decimal.Decimal) (decimal.Decimal, error)
	Deduct(ctx context.Context, tenantID string, key model.LedgerKey, delta decimal.Decimal) (decimal.Decimal, error)
	Sync(ctx context.Context, tenantID, storeID string) (*SyncReport, error)
	Execute(ctx context.Context, tenantID string, cmd Command) ([]Balance, error)
	Convert(ctx context.Context, tenantID, productID string, qty decimal.Decimal, fromUnit, toUnit string) (*decimal.Decimal, error)
	UpdateFactor(ctx context.Context, tenantID, productID string, factor decimal.Decimal) error
	ListMovements(ctx context.Context, tenantID string, filters *dto.MovementFilters) ([]model.InventoryMovement, error)
	ListConversions(ctx context.Context, tenantID string, filters *dto.ConversionFilters) ([]model.UnitConversionLog, error)
}

// Balance is a ledger row's quantity after a command touched it.
type Balance struct {
	Key      model.LedgerKey
	Quantity decimal.Decimal
}

type SyncAdjustment struct {
	ProductID    string
	Counter      decimal.Decimal
	LedgerBefore decimal.Decimal // base-unit equivalent before the fix
	Delta        decimal.Decimal
}

type SyncReport struct {
	StoreID  string
	Checked  int
	Adjusted []SyncAdjustment
	// Skipped lists products whose ledger rows have no counter, or whose
	// product record is gone; they are left untouched.
	Skipped []string
}
