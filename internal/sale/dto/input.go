package dto

import (
	"fmt"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/shopspring/decimal"
)

type SaleItemInput struct {
	ProductID string
	UnitID    string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
}

type CreateSaleInput struct {
	SaleID    string // optional; a repeated id replays the first result
	StoreID   string
	CashierID string
	Discount  decimal.Decimal
	Tax       decimal.Decimal
	Items     []SaleItemInput
}

func (in *CreateSaleInput) Validate() error {
	if in == nil {
		return apperror.Invalid("sale", "is required")
	}
	if in.StoreID == "" {
		return apperror.Invalid("store_id", "is required")
	}
	if len(in.Items) == 0 {
		return apperror.Invalid("items", "at least one item is required")
	}
	for i, it := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		switch {
		case it.ProductID == "":
			return apperror.Invalid(field+".product_id", "is required")
		case it.UnitID == "":
			return apperror.Invalid(field+".unit_id", "is required")
		case !it.Quantity.IsPositive():
			return apperror.Invalid(field+".quantity", "must be greater than zero")
		case it.Price.IsNegative():
			return apperror.Invalid(field+".price", "cannot be negative")
		}
	}
	if in.Discount.IsNegative() {
		return apperror.Invalid("discount", "cannot be negative")
	}
	if in.Tax.IsNegative() {
		return apperror.Invalid("tax", "cannot be negative")
	}
	if in.Total().IsNegative() {
		return apperror.Invalid("discount", "exceeds the sale subtotal")
	}
	return nil
}

func (in *CreateSaleInput) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range in.Items {
		sum = sum.Add(it.Quantity.Mul(it.Price))
	}
	return sum
}

func (in *CreateSaleInput) Total() decimal.Decimal {
	return in.Subtotal().Sub(in.Discount).Add(in.Tax)
}

// RefundLine returns Quantity units of the sale line LineNo, in the unit it
// was sold in.
type RefundLine struct {
	LineNo   int
	Quantity decimal.Decimal
}

type ReverseSaleInput struct {
	SaleID string
	Lines  []RefundLine // empty refunds everything still refundable
	Reason string
	UserID string
}

func (in *ReverseSaleInput) Validate() error {
	if in == nil || in.SaleID == "" {
		return apperror.Invalid("sale_id", "is required")
	}
	seen := make(map[int]bool, len(in.Lines))
	for i, l := range in.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if seen[l.LineNo] {
			return apperror.Invalid(field+".line_no", "listed more than once")
		}
		seen[l.LineNo] = true
		if !l.Quantity.IsPositive() {
			return apperror.Invalid(field+".quantity", "must be greater than zero")
		}
	}
	return nil
}

type SaleResult struct {
	SaleID        string
	InvoiceNumber string
	Status        model.SaleStatus
	Total         decimal.Decimal
	Replayed      bool // the sale id was already recorded; nothing was deducted
}
