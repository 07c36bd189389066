package handler

import (
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestBalances_RoundTrip(t *testing.T) {
	in := []inventory.Balance{
		{Key: model.LedgerKey{ProductID: "P", StoreID: "s1", UnitID: "box"}, Quantity: decimal.NewFromInt(4)},
		{Key: model.LedgerKey{ProductID: "P", StoreID: "s2", UnitID: "pcs"}, Quantity: decimal.RequireFromString("0.250000")},
	}

	s, err := balancesToStruct(in)
	require.NoError(t, err)
	out, err := BalancesFromStruct(s)
	require.NoError(t, err)

	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].Key, out[i].Key)
		assert.True(t, in[i].Quantity.Equal(out[i].Quantity), "%s != %s", in[i].Quantity, out[i].Quantity)
	}

	again, err := balancesToStruct(out)
	require.NoError(t, err)
	assert.True(t, proto.Equal(s, again))
}

func TestSyncReport_RoundTrip(t *testing.T) {
	in := &inventory.SyncReport{
		StoreID: "s1",
		Checked: 3,
		Adjusted: []inventory.SyncAdjustment{
			{ProductID: "P", Counter: decimal.NewFromInt(10), LedgerBefore: decimal.NewFromInt(29), Delta: decimal.NewFromInt(-19)},
			{ProductID: "Q", Counter: decimal.RequireFromString("1.5"), LedgerBefore: decimal.Zero, Delta: decimal.RequireFromString("1.5")},
		},
		Skipped: []string{"R"},
	}

	s, err := syncReportToStruct(in)
	require.NoError(t, err)
	out, err := SyncReportFromStruct(s)
	require.NoError(t, err)

	assert.Equal(t, in.StoreID, out.StoreID)
	assert.Equal(t, in.Checked, out.Checked)
	assert.Equal(t, in.Skipped, out.Skipped)
	require.Len(t, out.Adjusted, len(in.Adjusted))
	for i, a := range in.Adjusted {
		got := out.Adjusted[i]
		assert.Equal(t, a.ProductID, got.ProductID)
		assert.True(t, a.Counter.Equal(got.Counter))
		assert.True(t, a.LedgerBefore.Equal(got.LedgerBefore))
		assert.True(t, a.Delta.Equal(got.Delta))
	}

	again, err := syncReportToStruct(out)
	require.NoError(t, err)
	assert.True(t, proto.Equal(s, again))
}

func TestSyncReport_EmptyRoundTrip(t *testing.T) {
	s, err := syncReportToStruct(&inventory.SyncReport{StoreID: "s1"})
	require.NoError(t, err)

	out, err := SyncReportFromStruct(s)
	require.NoError(t, err)
	assert.Equal(t, "s1", out.StoreID)
	assert.Zero(t, out.Checked)
	assert.Empty(t, out.Adjusted)
	assert.Empty(t, out.Skipped)
}

func TestMovements_RoundTrip(t *testing.T) {
	saleRef, saleID, cashier := "sale", "sale-1", "u1"
	in := []model.InventoryMovement{
		{
			ID:             "m1",
			StoreID:        "s1",
			ProductID:      "P",
			UnitID:         "pcs",
			MovementType:   model.MovementSale,
			QuantityChange: decimal.NewFromInt(-30),
			QuantityBefore: decimal.NewFromInt(100),
			QuantityAfter:  decimal.NewFromInt(70),
			ReferenceType:  &saleRef,
			ReferenceID:    &saleID,
			CreatedBy:      &cashier,
			CreatedAt:      time.Date(2026, 10, 14, 9, 30, 0, 500000000, time.UTC),
		},
		{
			ID:             "m2",
			StoreID:        "s1",
			ProductID:      "P",
			UnitID:         "box",
			MovementType:   model.MovementAdjustment,
			QuantityChange: decimal.RequireFromString("2.5"),
			QuantityAfter:  decimal.RequireFromString("2.5"),
			Notes:          "recount",
			CreatedAt:      time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC),
		},
	}

	s, err := movementsToStruct(in)
	require.NoError(t, err)
	out, err := MovementsFromStruct(s)
	require.NoError(t, err)

	require.Len(t, out, len(in))
	for i, m := range in {
		got := out[i]
		assert.Equal(t, m.ID, got.ID)
		assert.Equal(t, m.StoreID, got.StoreID)
		assert.Equal(t, m.ProductID, got.ProductID)
		assert.Equal(t, m.UnitID, got.UnitID)
		assert.Equal(t, m.MovementType, got.MovementType)
		assert.True(t, m.QuantityChange.Equal(got.QuantityChange))
		assert.True(t, m.QuantityBefore.Equal(got.QuantityBefore))
		assert.True(t, m.QuantityAfter.Equal(got.QuantityAfter))
		assert.Equal(t, m.ReferenceType, got.ReferenceType)
		assert.Equal(t, m.ReferenceID, got.ReferenceID)
		assert.Equal(t, m.CreatedBy, got.CreatedBy)
		assert.Equal(t, m.Notes, got.Notes)
		assert.True(t, m.CreatedAt.Equal(got.CreatedAt), "%s != %s", m.CreatedAt, got.CreatedAt)
	}

	again, err := movementsToStruct(out)
	require.NoError(t, err)
	assert.True(t, proto.Equal(s, again))
}

func TestMovementsFromStruct_BadQuantity(t *testing.T) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"movements": []interface{}{map[string]interface{}{"id": "m1", "quantity_change": "many"}},
	})
	require.NoError(t, err)

	_, err = MovementsFromStruct(s)
	assert.Error(t, err)
}
