package handler

import (
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/structrpc"
	"github.com/fekuna/omnipos-stock-service/internal/sale/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestCreateSaleFromStruct(t *testing.T) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"sale_id":  "sale-1",
		"store_id": "s1",
		"discount": "2.50",
		"items": []interface{}{
			map[string]interface{}{"product_id": "A", "unit_id": "box", "quantity": "1", "price": "12000"},
			map[string]interface{}{"product_id": "B", "unit_id": "pcs", "quantity": 3, "price": 0.5},
		},
	})
	require.NoError(t, err)

	in, err := createSaleFromStruct(s)
	require.NoError(t, err)
	assert.Equal(t, "sale-1", in.SaleID)
	assert.True(t, in.Discount.Equal(decimal.RequireFromString("2.5")))
	require.Len(t, in.Items, 2)
	assert.Equal(t, "box", in.Items[0].UnitID)
	assert.True(t, in.Items[1].Quantity.Equal(decimal.NewFromInt(3)))
	assert.True(t, in.Items[1].Price.Equal(decimal.RequireFromString("0.5")))
}

func TestCreateSaleFromStruct_BadQuantity(t *testing.T) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"items": []interface{}{map[string]interface{}{"product_id": "A", "unit_id": "pcs", "quantity": "lots"}},
	})
	require.NoError(t, err)

	_, err = createSaleFromStruct(s)
	assert.Error(t, err)
}

func TestSaleToStruct(t *testing.T) {
	cashier := "u1"
	sale := &model.Sale{
		BaseModel:     model.BaseModel{ID: "sale-1", CreatedAt: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)},
		StoreID:       "s1",
		InvoiceNumber: "INV-s1-20261014-000001",
		Status:        model.SaleStatusPartiallyRefunded,
		Subtotal:      decimal.NewFromInt(300),
		Total:         decimal.NewFromInt(300),
		CashierID:     &cashier,
		Items: []model.SaleItem{{
			LineNo:           1,
			ProductID:        "A",
			UnitID:           "pcs",
			Quantity:         decimal.NewFromInt(3),
			Price:            decimal.NewFromInt(100),
			RefundedQuantity: decimal.NewFromInt(1),
		}},
	}

	s, err := saleToStruct(sale)
	require.NoError(t, err)
	assert.Equal(t, "INV-s1-20261014-000001", structrpc.String(s, "invoice_number"))
	assert.Equal(t, "partially_refunded", structrpc.String(s, "status"))
	assert.Equal(t, "2026-10-14T09:00:00Z", structrpc.String(s, "created_at"))

	items, err := structrpc.Structs(s, "items")
	require.NoError(t, err)
	require.Len(t, items, 1)
	line, err := structrpc.Int(items[0], "line_no")
	require.NoError(t, err)
	assert.Equal(t, 1, line)
	assert.Equal(t, "1", structrpc.String(items[0], "refunded_quantity"))
}

func TestReverseSaleFromStruct(t *testing.T) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"sale_id": "sale-1",
		"reason":  "damaged",
		"lines":   []interface{}{map[string]interface{}{"line_no": 2, "quantity": "1"}},
	})
	require.NoError(t, err)

	in, err := reverseSaleFromStruct(s)
	require.NoError(t, err)
	assert.Equal(t, "damaged", in.Reason)
	require.Len(t, in.Lines, 1)
	assert.Equal(t, 2, in.Lines[0].LineNo)
}

func TestCreateSale_RoundTrip(t *testing.T) {
	in := &dto.CreateSaleInput{
		SaleID:    "sale-1",
		StoreID:   "s1",
		CashierID: "u1",
		Discount:  decimal.RequireFromString("2.50"),
		Tax:       decimal.RequireFromString("0.125"),
		Items: []dto.SaleItemInput{
			{ProductID: "A", UnitID: "box", Quantity: decimal.NewFromInt(1), Price: decimal.RequireFromString("12000.75")},
			{ProductID: "B", UnitID: "pcs", Quantity: decimal.RequireFromString("0.333333"), Price: decimal.Zero},
		},
	}

	s, err := CreateSaleToStruct(in)
	require.NoError(t, err)
	out, err := createSaleFromStruct(s)
	require.NoError(t, err)

	assert.Equal(t, in.SaleID, out.SaleID)
	assert.Equal(t, in.StoreID, out.StoreID)
	assert.Equal(t, in.CashierID, out.CashierID)
	assert.True(t, in.Discount.Equal(out.Discount))
	assert.True(t, in.Tax.Equal(out.Tax))
	require.Len(t, out.Items, len(in.Items))
	for i := range in.Items {
		assert.Equal(t, in.Items[i].ProductID, out.Items[i].ProductID)
		assert.Equal(t, in.Items[i].UnitID, out.Items[i].UnitID)
		assert.True(t, in.Items[i].Quantity.Equal(out.Items[i].Quantity), "line %d quantity", i)
		assert.True(t, in.Items[i].Price.Equal(out.Items[i].Price), "line %d price", i)
	}

	again, err := CreateSaleToStruct(out)
	require.NoError(t, err)
	assert.True(t, proto.Equal(s, again))
}

func TestSale_RoundTrip(t *testing.T) {
	cashier := "u1"
	cases := map[string]*model.Sale{
		"with cashier": {
			BaseModel:     model.BaseModel{ID: "sale-1", CreatedAt: time.Date(2026, 10, 14, 9, 0, 0, 123456000, time.UTC)},
			StoreID:       "s1",
			InvoiceNumber: "INV-s1-20261014-000001",
			Status:        model.SaleStatusPartiallyRefunded,
			Subtotal:      decimal.RequireFromString("300.50"),
			Discount:      decimal.RequireFromString("0.5"),
			Tax:           decimal.RequireFromString("30.05"),
			Total:         decimal.RequireFromString("330.05"),
			CashierID:     &cashier,
			Items: []model.SaleItem{{
				ID:               "item-1",
				SaleID:           "sale-1",
				LineNo:           1,
				ProductID:        "A",
				UnitID:           "pcs",
				Quantity:         decimal.RequireFromString("3.5"),
				Price:            decimal.RequireFromString("85.857143"),
				RefundedQuantity: decimal.NewFromInt(1),
			}},
		},
		"no cashier no items": {
			BaseModel:     model.BaseModel{ID: "sale-2", CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("WIB", 7*3600))},
			StoreID:       "s1",
			InvoiceNumber: "INV-s1-20260102-000002",
			Status:        model.SaleStatusUnprinted,
		},
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := saleToStruct(in)
			require.NoError(t, err)
			out, err := SaleFromStruct(s)
			require.NoError(t, err)

			assert.Equal(t, in.ID, out.ID)
			assert.Equal(t, in.StoreID, out.StoreID)
			assert.Equal(t, in.InvoiceNumber, out.InvoiceNumber)
			assert.Equal(t, in.Status, out.Status)
			assert.True(t, in.CreatedAt.Equal(out.CreatedAt), "created_at %s != %s", in.CreatedAt, out.CreatedAt)
			assert.Equal(t, in.CashierID, out.CashierID)
			for _, pair := range [][2]decimal.Decimal{
				{in.Subtotal, out.Subtotal}, {in.Discount, out.Discount}, {in.Tax, out.Tax}, {in.Total, out.Total},
			} {
				assert.True(t, pair[0].Equal(pair[1]), "%s != %s", pair[0], pair[1])
			}
			require.Len(t, out.Items, len(in.Items))
			for i, it := range in.Items {
				got := out.Items[i]
				assert.Equal(t, it.ID, got.ID)
				assert.Equal(t, it.SaleID, got.SaleID)
				assert.Equal(t, it.LineNo, got.LineNo)
				assert.Equal(t, it.ProductID, got.ProductID)
				assert.Equal(t, it.UnitID, got.UnitID)
				assert.True(t, it.Quantity.Equal(got.Quantity))
				assert.True(t, it.Price.Equal(got.Price))
				assert.True(t, it.RefundedQuantity.Equal(got.RefundedQuantity))
			}

			again, err := saleToStruct(out)
			require.NoError(t, err)
			assert.True(t, proto.Equal(s, again))
		})
	}
}

func TestSaleFromStruct_BadTimestamp(t *testing.T) {
	s, err := structpb.NewStruct(map[string]interface{}{"id": "sale-1", "created_at": "yesterday"})
	require.NoError(t, err)

	_, err = SaleFromStruct(s)
	assert.Error(t, err)
}
