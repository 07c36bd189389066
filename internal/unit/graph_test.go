package unit

import (
	"context"
	"fmt"
	"testing"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	products map[string]*model.Product
	history  map[string]bool
}

func (f *fakeRepo) GetProduct(_ context.Context, id string) (*model.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, apperror.ErrProductNotFound)
	}
	return p, nil
}

func (f *fakeRepo) HasStockHistory(_ context.Context, id string) (bool, error) {
	return f.history[id], nil
}

func (f *fakeRepo) UpdateConversionFactor(_ context.Context, id string, factor decimal.Decimal) error {
	f.products[id].ConversionFactor = factor
	return nil
}

func newFakeRepo() *fakeRepo {
	box := "box"
	return &fakeRepo{
		products: map[string]*model.Product{
			"p1": {BaseModel: model.BaseModel{ID: "p1"}, BaseUnitID: "pcs", PackagingUnitID: &box, ConversionFactor: d("12")},
			"p2": {BaseModel: model.BaseModel{ID: "p2"}, BaseUnitID: "ml"},
		},
		history: map[string]bool{"p1": true},
	}
}

func TestGraph_ToBaseUnit(t *testing.T) {
	g := NewGraph(newFakeRepo())
	ctx := context.Background()

	got, err := g.ToBaseUnit(ctx, "p1", d("2"), "box")
	require.NoError(t, err)
	assert.True(t, got.Equal(d("24")))

	// "box" belongs to p1's family, not p2's.
	_, err = g.ToBaseUnit(ctx, "p2", d("2"), "box")
	assert.ErrorIs(t, err, apperror.ErrIncompatibleUnit)

	_, err = g.ToBaseUnit(ctx, "missing", d("2"), "box")
	assert.ErrorIs(t, err, apperror.ErrProductNotFound)
}

func TestGraph_Convert(t *testing.T) {
	g := NewGraph(newFakeRepo())

	got, err := g.Convert(context.Background(), d("30"), "pcs", "box", "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(d("2.5")))

	got, err = g.Convert(context.Background(), d("30"), "pcs", "box", "p2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGraph_UpdateFactor(t *testing.T) {
	repo := newFakeRepo()
	g := NewGraph(repo)
	ctx := context.Background()

	err := g.UpdateFactor(ctx, "p1", d("6"))
	assert.ErrorIs(t, err, apperror.ErrFactorLocked)
	assert.True(t, repo.products["p1"].ConversionFactor.Equal(d("12")))

	require.NoError(t, g.UpdateFactor(ctx, "p2", d("1000")))
	assert.True(t, repo.products["p2"].ConversionFactor.Equal(d("1000")))

	err = g.UpdateFactor(ctx, "p2", d("0"))
	assert.True(t, apperror.IsValidation(err))
}
