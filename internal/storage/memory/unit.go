package memory

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/shopspring/decimal"
)

type unitRepo struct {
	t *tx
}

func (r unitRepo) GetProduct(_ context.Context, productID string) (*model.Product, error) {
	p, ok := r.t.product(productID)
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, apperror.ErrProductNotFound)
	}
	return &p, nil
}

func (r unitRepo) HasStockHistory(_ context.Context, productID string) (bool, error) {
	for k := range r.t.w.ledger {
		if k.ProductID == productID {
			return true, nil
		}
	}
	found := false
	r.t.read(func(st *state) {
		for k := range st.ledger {
			if k.ProductID == productID {
				found = true
				return
			}
		}
	})
	return found, nil
}

func (r unitRepo) UpdateConversionFactor(ctx context.Context, productID string, factor decimal.Decimal) error {
	if _, err := r.t.lock(ctx, productRow(productID)); err != nil {
		return err
	}
	p, ok := r.t.product(productID)
	if !ok {
		return fmt.Errorf("product %s: %w", productID, apperror.ErrProductNotFound)
	}
	if locked, _ := r.HasStockHistory(ctx, productID); locked {
		return fmt.Errorf("product %s: %w", productID, apperror.ErrFactorLocked)
	}
	p.ConversionFactor = factor
	r.t.w.products[productID] = p
	return nil
}
