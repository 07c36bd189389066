package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerKey addresses exactly one ledger row.
type LedgerKey struct {
	ProductID string
	StoreID   string
	UnitID    string
}

type LedgerEntry struct {
	ProductID string          `db:"product_id"`
	StoreID   string          `db:"store_id"`
	UnitID    string          `db:"unit_id"`
	Quantity  decimal.Decimal `db:"quantity"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (e LedgerEntry) Key() LedgerKey {
	return LedgerKey{ProductID: e.ProductID, StoreID: e.StoreID, UnitID: e.UnitID}
}

// StockCounter is the primary per-product quantity, in base units.
type StockCounter struct {
	ProductID string          `db:"product_id"`
	StoreID   string          `db:"store_id"`
	Quantity  decimal.Decimal `db:"quantity"`
	UpdatedAt time.Time       `db:"updated_at"`
}

type MovementType string

const (
	MovementSale       MovementType = "sale"
	MovementRefund     MovementType = "refund"
	MovementPurchase   MovementType = "purchase"
	MovementTransfer   MovementType = "transfer"
	MovementAdjustment MovementType = "adjustment"
	MovementConversion MovementType = "conversion"
	MovementSync       MovementType = "sync"
)

type InventoryMovement struct {
	ID             string          `db:"id"`
	StoreID        string          `db:"store_id"`
	ProductID      string          `db:"product_id"`
	UnitID         string          `db:"unit_id"`
	MovementType   MovementType    `db:"movement_type"`
	QuantityChange decimal.Decimal `db:"quantity_change"`
	QuantityBefore decimal.Decimal `db:"quantity_before"`
	QuantityAfter  decimal.Decimal `db:"quantity_after"`
	ReferenceType  *string         `db:"reference_type"`
	ReferenceID    *string         `db:"reference_id"`
	Notes          string          `db:"notes"`
	CreatedBy      *string         `db:"created_by"`
	CreatedAt      time.Time       `db:"created_at"`
}

type ConversionKind string

const (
	ConversionAutomatic ConversionKind = "automatic"
	ConversionManual    ConversionKind = "manual"
)

// UnitConversionLog is an append-only record of packages broken into base units.
type UnitConversionLog struct {
	ID                 string          `db:"id"`
	StoreID            string          `db:"store_id"`
	ProductID          string          `db:"product_id"`
	FromUnitID         string          `db:"from_unit_id"`
	ToUnitID           string          `db:"to_unit_id"`
	Kind               ConversionKind  `db:"kind"`
	PackagesConverted  decimal.Decimal `db:"packages_converted"`
	ConversionFactor   decimal.Decimal `db:"conversion_factor"`
	PackagingQtyBefore decimal.Decimal `db:"packaging_qty_before"`
	PackagingQtyAfter  decimal.Decimal `db:"packaging_qty_after"`
	BaseQtyBefore      decimal.Decimal `db:"base_qty_before"`
	BaseQtyAfter       decimal.Decimal `db:"base_qty_after"`
	ReferenceID        *string         `db:"reference_id"`
	CreatedAt          time.Time       `db:"created_at"`
}
