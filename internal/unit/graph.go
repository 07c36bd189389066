package unit

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/shopspring/decimal"
)

// Graph answers unit questions for one tenant by reading product unit
// families through its repository.
type Graph struct {
	repo Repository
}

func NewGraph(repo Repository) *Graph {
	return &Graph{repo: repo}
}

func (g *Graph) Family(ctx context.Context, productID string) (Family, error) {
	p, err := g.repo.GetProduct(ctx, productID)
	if err != nil {
		return Family{}, err
	}
	return FamilyOf(p), nil
}

func (g *Graph) ToBaseUnit(ctx context.Context, productID string, qty decimal.Decimal, fromUnit string) (decimal.Decimal, error) {
	f, err := g.Family(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return f.ToBase(qty, fromUnit)
}

// Convert returns nil when the product has no automatic path between the units.
func (g *Graph) Convert(ctx context.Context, qty decimal.Decimal, fromUnit, toUnit, productID string) (*decimal.Decimal, error) {
	f, err := g.Family(ctx, productID)
	if err != nil {
		return nil, err
	}
	return f.Convert(qty, fromUnit, toUnit), nil
}

// UpdateFactor changes a product's packaging factor. Once ledger rows exist
// the factor is frozen.
func (g *Graph) UpdateFactor(ctx context.Context, productID string, factor decimal.Decimal) error {
	if !factor.IsPositive() {
		return apperror.Invalid("conversion_factor", "must be greater than zero")
	}
	locked, err := g.repo.HasStockHistory(ctx, productID)
	if err != nil {
		return fmt.Errorf("check stock history: %w", err)
	}
	if locked {
		return fmt.Errorf("product %s: %w", productID, apperror.ErrFactorLocked)
	}
	return g.repo.UpdateConversionFactor(ctx, productID, factor)
}
