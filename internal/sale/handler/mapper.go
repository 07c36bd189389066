package handler

import (
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/structrpc"
	"github.com/fekuna/omnipos-stock-service/internal/sale/dto"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"
)

// Quantities and money travel as decimal strings.

func createSaleFromStruct(s *structpb.Struct) (*dto.CreateSaleInput, error) {
	input := &dto.CreateSaleInput{
		SaleID:    structrpc.String(s, "sale_id"),
		StoreID:   structrpc.String(s, "store_id"),
		CashierID: structrpc.String(s, "cashier_id"),
	}

	var err error
	if input.Discount, err = structrpc.Decimal(s, "discount"); err != nil {
		return nil, err
	}
	if input.Tax, err = structrpc.Decimal(s, "tax"); err != nil {
		return nil, err
	}

	items, err := structrpc.Structs(s, "items")
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		item := dto.SaleItemInput{
			ProductID: structrpc.String(it, "product_id"),
			UnitID:    structrpc.String(it, "unit_id"),
		}
		if item.Quantity, err = structrpc.Decimal(it, "quantity"); err != nil {
			return nil, err
		}
		if item.Price, err = structrpc.Decimal(it, "price"); err != nil {
			return nil, err
		}
		input.Items = append(input.Items, item)
	}
	return input, nil
}

func reverseSaleFromStruct(s *structpb.Struct) (*dto.ReverseSaleInput, error) {
	input := &dto.ReverseSaleInput{
		SaleID: structrpc.String(s, "sale_id"),
		Reason: structrpc.String(s, "reason"),
		UserID: structrpc.String(s, "user_id"),
	}

	lines, err := structrpc.Structs(s, "lines")
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		var line dto.RefundLine
		if line.LineNo, err = structrpc.Int(l, "line_no"); err != nil {
			return nil, err
		}
		if line.Quantity, err = structrpc.Decimal(l, "quantity"); err != nil {
			return nil, err
		}
		input.Lines = append(input.Lines, line)
	}
	return input, nil
}

func resultToStruct(r *dto.SaleResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"sale_id":        r.SaleID,
		"invoice_number": r.InvoiceNumber,
		"status":         string(r.Status),
		"total":          r.Total.String(),
		"replayed":       r.Replayed,
	})
}

func saleToStruct(s *model.Sale) (*structpb.Struct, error) {
	items := make([]interface{}, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, map[string]interface{}{
			"id":                it.ID,
			"line_no":           it.LineNo,
			"product_id":        it.ProductID,
			"unit_id":           it.UnitID,
			"quantity":          it.Quantity.String(),
			"price":             it.Price.String(),
			"refunded_quantity": it.RefundedQuantity.String(),
		})
	}

	cashier := ""
	if s.CashierID != nil {
		cashier = *s.CashierID
	}

	return structpb.NewStruct(map[string]interface{}{
		"id":             s.ID,
		"store_id":       s.StoreID,
		"invoice_number": s.InvoiceNumber,
		"status":         string(s.Status),
		"subtotal":       s.Subtotal.String(),
		"discount":       s.Discount.String(),
		"tax":            s.Tax.String(),
		"total":          s.Total.String(),
		"cashier_id":     cashier,
		"created_at":     s.CreatedAt.UTC().Format(time.RFC3339Nano),
		"items":          items,
	})
}

// CreateSaleToStruct encodes a sale request the way CreateSale reads it.
func CreateSaleToStruct(in *dto.CreateSaleInput) (*structpb.Struct, error) {
	items := make([]interface{}, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, map[string]interface{}{
			"product_id": it.ProductID,
			"unit_id":    it.UnitID,
			"quantity":   it.Quantity.String(),
			"price":      it.Price.String(),
		})
	}
	return structpb.NewStruct(map[string]interface{}{
		"sale_id":    in.SaleID,
		"store_id":   in.StoreID,
		"cashier_id": in.CashierID,
		"discount":   in.Discount.String(),
		"tax":        in.Tax.String(),
		"items":      items,
	})
}

// SaleFromStruct decodes a GetSale response. An empty cashier_id is a sale
// with no cashier.
func SaleFromStruct(s *structpb.Struct) (*model.Sale, error) {
	sale := &model.Sale{
		BaseModel:     model.BaseModel{ID: structrpc.String(s, "id")},
		StoreID:       structrpc.String(s, "store_id"),
		InvoiceNumber: structrpc.String(s, "invoice_number"),
		Status:        model.SaleStatus(structrpc.String(s, "status")),
	}
	if cashier := structrpc.String(s, "cashier_id"); cashier != "" {
		sale.CashierID = &cashier
	}
	if raw := structrpc.String(s, "created_at"); raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("created_at: %w", err)
		}
		sale.CreatedAt = at
	}

	var err error
	for field, dst := range map[string]*decimal.Decimal{
		"subtotal": &sale.Subtotal,
		"discount": &sale.Discount,
		"tax":      &sale.Tax,
		"total":    &sale.Total,
	} {
		if *dst, err = structrpc.Decimal(s, field); err != nil {
			return nil, err
		}
	}

	items, err := structrpc.Structs(s, "items")
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		item := model.SaleItem{
			ID:        structrpc.String(it, "id"),
			SaleID:    sale.ID,
			ProductID: structrpc.String(it, "product_id"),
			UnitID:    structrpc.String(it, "unit_id"),
		}
		if item.LineNo, err = structrpc.Int(it, "line_no"); err != nil {
			return nil, err
		}
		if item.Quantity, err = structrpc.Decimal(it, "quantity"); err != nil {
			return nil, err
		}
		if item.Price, err = structrpc.Decimal(it, "price"); err != nil {
			return nil, err
		}
		if item.RefundedQuantity, err = structrpc.Decimal(it, "refunded_quantity"); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	return sale, nil
}
