package unit

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/shopspring/decimal"
)

type Repository interface {
	// GetProduct returns apperror.ErrProductNotFound for unknown ids.
	GetProduct(ctx context.Context, productID string) (*model.Product, error)
	HasStockHistory(ctx context.Context, productID string) (bool, error)
	UpdateConversionFactor(ctx context.Context, productID string, factor decimal.Decimal) error
}
