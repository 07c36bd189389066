package inventory

import (
	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/shopspring/decimal"
)

// Command is a stock-affecting operation. The set is closed: only the types
// in this file implement it.
type Command interface {
	Validate() error
	command()
}

// ReceiveStock books goods received against a purchase.
type ReceiveStock struct {
	Key         model.LedgerKey
	Quantity    decimal.Decimal
	ReferenceID string // purchase order
	UserID      string
}

type IssueStock struct {
	Key      model.LedgerKey
	Quantity decimal.Decimal
	Reason   string
	UserID   string
}

// AdjustStock is a manual correction; a negative Delta removes stock.
type AdjustStock struct {
	Key    model.LedgerKey
	Delta  decimal.Decimal
	Reason string
	UserID string
}

// TransferStock moves quantity of one unit between two stores of a tenant.
type TransferStock struct {
	ProductID   string
	UnitID      string
	FromStoreID string
	ToStoreID   string
	Quantity    decimal.Decimal
	Reason      string
	UserID      string
}

// BreakPackaging opens whole packages into base units by hand.
type BreakPackaging struct {
	ProductID string
	StoreID   string
	Packages  decimal.Decimal
	UserID    string
}

func (ReceiveStock) command()   {}
func (IssueStock) command()     {}
func (AdjustStock) command()    {}
func (TransferStock) command()  {}
func (BreakPackaging) command() {}

// ValidateKey rejects a key with any empty component.
func ValidateKey(k model.LedgerKey) error {
	switch {
	case k.ProductID == "":
		return apperror.Invalid("product_id", "is required")
	case k.StoreID == "":
		return apperror.Invalid("store_id", "is required")
	case k.UnitID == "":
		return apperror.Invalid("unit_id", "is required")
	}
	return nil
}

func validatePositive(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return apperror.Invalid(field, "must be greater than zero")
	}
	return nil
}

func (c ReceiveStock) Validate() error {
	if err := ValidateKey(c.Key); err != nil {
		return err
	}
	return validatePositive("quantity", c.Quantity)
}

func (c IssueStock) Validate() error {
	if err := ValidateKey(c.Key); err != nil {
		return err
	}
	return validatePositive("quantity", c.Quantity)
}

func (c AdjustStock) Validate() error {
	if err := ValidateKey(c.Key); err != nil {
		return err
	}
	if c.Delta.IsZero() {
		return apperror.Invalid("delta", "must not be zero")
	}
	return nil
}

func (c TransferStock) Validate() error {
	if err := ValidateKey(c.Source()); err != nil {
		return err
	}
	if c.ToStoreID == "" {
		return apperror.Invalid("to_store_id", "is required")
	}
	if c.ToStoreID == c.FromStoreID {
		return apperror.Invalid("to_store_id", "must differ from the source store")
	}
	return validatePositive("quantity", c.Quantity)
}

func (c TransferStock) Source() model.LedgerKey {
	return model.LedgerKey{ProductID: c.ProductID, StoreID: c.FromStoreID, UnitID: c.UnitID}
}

func (c TransferStock) Target() model.LedgerKey {
	return model.LedgerKey{ProductID: c.ProductID, StoreID: c.ToStoreID, UnitID: c.UnitID}
}

func (c BreakPackaging) Validate() error {
	if c.ProductID == "" {
		return apperror.Invalid("product_id", "is required")
	}
	if c.StoreID == "" {
		return apperror.Invalid("store_id", "is required")
	}
	if err := validatePositive("packages", c.Packages); err != nil {
		return err
	}
	if !c.Packages.Equal(c.Packages.Truncate(0)) {
		return apperror.Invalid("packages", "must be a whole number")
	}
	return nil
}
