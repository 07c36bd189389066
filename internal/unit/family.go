package unit

import (
	"fmt"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/shopspring/decimal"
)

// ConversionPrecision is the number of decimal places kept when dividing
// base units into packages.
const ConversionPrecision = 16

// Epsilon is the tolerance of a base -> packaging -> base round trip.
var Epsilon = decimal.New(1, -12)

// Family is the unit set of one product: a base unit and at most one
// packaging unit worth Factor base units.
type Family struct {
	ProductID       string
	BaseUnitID      string
	PackagingUnitID string
	Factor          decimal.Decimal
}

func FamilyOf(p *model.Product) Family {
	f := Family{
		ProductID:  p.ID,
		BaseUnitID: p.BaseUnitID,
		Factor:     p.ConversionFactor,
	}
	if p.PackagingUnitID != nil && *p.PackagingUnitID != "" && *p.PackagingUnitID != p.BaseUnitID {
		f.PackagingUnitID = *p.PackagingUnitID
	}
	if f.PackagingUnitID == "" || !f.Factor.IsPositive() {
		f.Factor = decimal.NewFromInt(1)
	}
	return f
}

func (f Family) HasPackaging() bool {
	return f.PackagingUnitID != ""
}

func (f Family) Contains(unitID string) bool {
	return unitID == f.BaseUnitID || (f.HasPackaging() && unitID == f.PackagingUnitID)
}

func (f Family) IsBase(unitID string) bool {
	return unitID == f.BaseUnitID
}

// ToBase expresses qty of fromUnit in base units.
func (f Family) ToBase(qty decimal.Decimal, fromUnit string) (decimal.Decimal, error) {
	switch {
	case fromUnit == f.BaseUnitID:
		return qty, nil
	case f.HasPackaging() && fromUnit == f.PackagingUnitID:
		return qty.Mul(f.Factor), nil
	}
	return decimal.Zero, fmt.Errorf("unit %s on product %s: %w", fromUnit, f.ProductID, apperror.ErrIncompatibleUnit)
}

// Convert translates qty between two units of the family. A nil result means
// no automatic conversion exists; it is never zero.
func (f Family) Convert(qty decimal.Decimal, fromUnit, toUnit string) *decimal.Decimal {
	if !f.Contains(fromUnit) || !f.Contains(toUnit) {
		return nil
	}
	var out decimal.Decimal
	switch {
	case fromUnit == toUnit:
		out = qty
	case fromUnit == f.PackagingUnitID:
		out = qty.Mul(f.Factor)
	default:
		out = qty.DivRound(f.Factor, ConversionPrecision)
	}
	return &out
}

// Split breaks a base quantity into whole packages and an exact remainder.
func (f Family) Split(base decimal.Decimal) (packages, remainder decimal.Decimal) {
	if !f.HasPackaging() {
		return decimal.Zero, base
	}
	return base.QuoRem(f.Factor, 0)
}

// PackagesToBreak is the smallest whole number of packages that covers
// shortfall base units.
func (f Family) PackagesToBreak(shortfall decimal.Decimal) decimal.Decimal {
	if !shortfall.IsPositive() || !f.HasPackaging() {
		return decimal.Zero
	}
	q, r := shortfall.QuoRem(f.Factor, 0)
	if r.IsPositive() {
		q = q.Add(decimal.NewFromInt(1))
	}
	return q
}
