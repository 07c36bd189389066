package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleStatus string

const (
	SaleStatusPending           SaleStatus = "pending"
	SaleStatusUnprinted         SaleStatus = "unprinted"
	SaleStatusPrinted           SaleStatus = "printed"
	SaleStatusRefunded          SaleStatus = "refunded"
	SaleStatusPartiallyRefunded SaleStatus = "partially_refunded"
)

var saleTransitions = map[SaleStatus][]SaleStatus{
	SaleStatusPending:           {SaleStatusUnprinted, SaleStatusPrinted, SaleStatusRefunded, SaleStatusPartiallyRefunded},
	SaleStatusUnprinted:         {SaleStatusPrinted, SaleStatusRefunded, SaleStatusPartiallyRefunded},
	SaleStatusPrinted:           {SaleStatusRefunded, SaleStatusPartiallyRefunded},
	SaleStatusPartiallyRefunded: {SaleStatusRefunded, SaleStatusPartiallyRefunded},
}

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusPending, SaleStatusUnprinted, SaleStatusPrinted, SaleStatusRefunded, SaleStatusPartiallyRefunded:
		return true
	}
	return false
}

// CanTransition reports whether a sale may move from s to next.
func (s SaleStatus) CanTransition(next SaleStatus) bool {
	for _, allowed := range saleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Sale struct {
	BaseModel
	StoreID       string          `db:"store_id"`
	InvoiceNumber string          `db:"invoice_number"`
	Status        SaleStatus      `db:"status"`
	Subtotal      decimal.Decimal `db:"subtotal"`
	Discount      decimal.Decimal `db:"discount"`
	Tax           decimal.Decimal `db:"tax"`
	Total         decimal.Decimal `db:"total"`
	CashierID     *string         `db:"cashier_id"`
	Items         []SaleItem      `db:"-"`
}

type SaleItem struct {
	ID               string          `db:"id"`
	SaleID           string          `db:"sale_id"`
	LineNo           int             `db:"line_no"`
	ProductID        string          `db:"product_id"`
	UnitID           string          `db:"unit_id"`
	Quantity         decimal.Decimal `db:"quantity"`
	Price            decimal.Decimal `db:"price"`
	RefundedQuantity decimal.Decimal `db:"refunded_quantity"`
	CreatedAt        time.Time       `db:"created_at"`
}

func (i SaleItem) Subtotal() decimal.Decimal {
	return i.Quantity.Mul(i.Price)
}

func (i SaleItem) Refundable() decimal.Decimal {
	return i.Quantity.Sub(i.RefundedQuantity)
}
