package sale

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/shopspring/decimal"
)

type Repository interface {
	// NextInvoiceSequence hands out per-store numbers; concurrent callers
	// never receive the same value.
	NextInvoiceSequence(ctx context.Context, storeID string) (int64, error)
	// InsertHeader reports false when a sale with the same id already exists.
	InsertHeader(ctx context.Context, s *model.Sale) (bool, error)
	InsertItem(ctx context.Context, item *model.SaleItem) error

	// GetByID and LockForUpdate load items too and return apperror.ErrSaleNotFound.
	GetByID(ctx context.Context, saleID string) (*model.Sale, error)
	LockForUpdate(ctx context.Context, saleID string) (*model.Sale, error)

	UpdateStatus(ctx context.Context, saleID string, status model.SaleStatus) error
	UpdateItemRefunded(ctx context.Context, itemID string, refunded decimal.Decimal) error
}
