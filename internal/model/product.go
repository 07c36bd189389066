package model

import "github.com/shopspring/decimal"

// Product carries the unit family of a stocked item. The surrounding CRUD
// layer owns the rest of the product record.
type Product struct {
	BaseModel
	StoreID          string          `db:"store_id" json:"store_id"`
	SKU              string          `db:"sku" json:"sku"`
	Name             string          `db:"name" json:"name"`
	BaseUnitID       string          `db:"base_unit_id" json:"base_unit_id"`
	PackagingUnitID  *string         `db:"packaging_unit_id" json:"packaging_unit_id"` // Nullable
	ConversionFactor decimal.Decimal `db:"conversion_factor" json:"conversion_factor"` // base units per package
	TrackInventory   bool            `db:"track_inventory" json:"track_inventory"`
	IsActive         bool            `db:"is_active" json:"is_active"`
}
