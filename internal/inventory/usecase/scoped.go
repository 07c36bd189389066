package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/storage"
	"github.com/fekuna/omnipos-stock-service/internal/unit"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Scoped is the ledger bound to one open transaction. It never commits or
// rolls back; the owner of the transaction does.
type Scoped struct {
	tx     storage.Tx
	units  *unit.Graph
	ref    Reference
	logger logger.ZapLogger
	now    func() time.Time
}

func (l *Ledger) Within(tx storage.Tx, ref Reference) *Scoped {
	return &Scoped{
		tx:     tx,
		units:  unit.NewGraph(tx.Units()),
		ref:    ref,
		logger: l.logger,
		now:    l.now,
	}
}

// Add books delta units on the row with a single upsert.
func (s *Scoped) Add(ctx context.Context, key model.LedgerKey, delta decimal.Decimal) (decimal.Decimal, error) {
	fam, err := s.prepare(ctx, key, delta)
	if err != nil {
		return decimal.Zero, err
	}
	return s.add(ctx, fam, key, delta, true)
}

// Deduct removes delta units or fails with *apperror.InsufficientStockError
// leaving every row as it was. A base-unit request larger than the base row
// first opens just enough whole packages.
func (s *Scoped) Deduct(ctx context.Context, key model.LedgerKey, delta decimal.Decimal) (decimal.Decimal, error) {
	fam, err := s.prepare(ctx, key, delta)
	if err != nil {
		return decimal.Zero, err
	}
	return s.deduct(ctx, fam, key, delta, true)
}

// BreakPackaging opens packages of the product into base units.
func (s *Scoped) BreakPackaging(ctx context.Context, productID, storeID string, packages decimal.Decimal) ([]inventory.Balance, error) {
	fam, err := s.units.Family(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !fam.HasPackaging() {
		return nil, fmt.Errorf("product %s has no packaging unit: %w", productID, apperror.ErrUnitMismatch)
	}
	return s.breakPackages(ctx, fam, storeID, packages, model.ConversionManual)
}

func (s *Scoped) prepare(ctx context.Context, key model.LedgerKey, delta decimal.Decimal) (unit.Family, error) {
	if err := inventory.ValidateKey(key); err != nil {
		return unit.Family{}, err
	}
	if !delta.IsPositive() {
		return unit.Family{}, apperror.Invalid("quantity", "must be greater than zero")
	}
	return family(ctx, s.units, key)
}

func (s *Scoped) add(ctx context.Context, fam unit.Family, key model.LedgerKey, delta decimal.Decimal, counted bool) (decimal.Decimal, error) {
	repo := s.tx.Ledger()
	after, err := repo.Increment(ctx, key, delta)
	if err != nil {
		return decimal.Zero, err
	}
	if err := repo.LogMovement(ctx, s.movement(key, s.ref.MovementType, delta, after)); err != nil {
		return decimal.Zero, err
	}
	if counted {
		if err := s.adjustCounter(ctx, fam, key, delta); err != nil {
			return decimal.Zero, err
		}
	}
	return after, nil
}

func (s *Scoped) deduct(ctx context.Context, fam unit.Family, key model.LedgerKey, delta decimal.Decimal, counted bool) (decimal.Decimal, error) {
	repo := s.tx.Ledger()
	after, ok, err := repo.DecrementIfAvailable(ctx, key, delta)
	if err != nil {
		return decimal.Zero, err
	}

	if !ok && fam.IsBase(key.UnitID) && fam.HasPackaging() {
		broke, err := s.breakForShortfall(ctx, fam, key, delta)
		if err != nil {
			return decimal.Zero, err
		}
		if broke {
			after, ok, err = repo.DecrementIfAvailable(ctx, key, delta)
			if err != nil {
				return decimal.Zero, err
			}
		}
	}
	if !ok {
		return decimal.Zero, s.insufficient(ctx, fam, key, delta)
	}

	if err := repo.LogMovement(ctx, s.movement(key, s.ref.MovementType, delta.Neg(), after)); err != nil {
		return decimal.Zero, err
	}
	if counted {
		if err := s.adjustCounter(ctx, fam, key, delta.Neg()); err != nil {
			return decimal.Zero, err
		}
	}
	return after, nil
}

// breakForShortfall opens the fewest packages that cover what the base row
// lacks. It reports false, changing nothing, when packaging stock is short too.
func (s *Scoped) breakForShortfall(ctx context.Context, fam unit.Family, key model.LedgerKey, delta decimal.Decimal) (bool, error) {
	repo := s.tx.Ledger()
	onHand, err := quantity(ctx, repo, key)
	if err != nil {
		return false, err
	}
	packs := fam.PackagesToBreak(delta.Sub(onHand))
	if packs.IsZero() {
		return false, nil
	}
	packed, err := quantity(ctx, repo, packagingKey(fam, key.StoreID))
	if err != nil {
		return false, err
	}
	if packed.LessThan(packs) {
		return false, nil
	}
	if _, err := s.breakPackages(ctx, fam, key.StoreID, packs, model.ConversionAutomatic); err != nil {
		if _, short := apperror.AsInsufficientStock(err); short {
			return false, nil // another session took the packages first
		}
		return false, err
	}
	return true, nil
}

func (s *Scoped) breakPackages(ctx context.Context, fam unit.Family, storeID string, packages decimal.Decimal, kind model.ConversionKind) ([]inventory.Balance, error) {
	repo := s.tx.Ledger()
	packKey := packagingKey(fam, storeID)
	baseKey := model.LedgerKey{ProductID: fam.ProductID, StoreID: storeID, UnitID: fam.BaseUnitID}

	packAfter, ok, err := repo.DecrementIfAvailable(ctx, packKey, packages)
	if err != nil {
		return nil, err
	}
	if !ok {
		available, err := quantity(ctx, repo, packKey)
		if err != nil {
			return nil, err
		}
		return nil, &apperror.InsufficientStockError{
			ProductID: fam.ProductID,
			StoreID:   storeID,
			UnitID:    fam.PackagingUnitID,
			Available: available,
			Requested: packages,
		}
	}

	pieces := packages.Mul(fam.Factor)
	baseAfter, err := repo.Increment(ctx, baseKey, pieces)
	if err != nil {
		return nil, err
	}

	var ref *string
	if s.ref.RefID != "" {
		ref = &s.ref.RefID
	}
	entry := &model.UnitConversionLog{
		ID:                 uuid.New().String(),
		StoreID:            storeID,
		ProductID:          fam.ProductID,
		FromUnitID:         fam.PackagingUnitID,
		ToUnitID:           fam.BaseUnitID,
		Kind:               kind,
		PackagesConverted:  packages,
		ConversionFactor:   fam.Factor,
		PackagingQtyBefore: packAfter.Add(packages),
		PackagingQtyAfter:  packAfter,
		BaseQtyBefore:      baseAfter.Sub(pieces),
		BaseQtyAfter:       baseAfter,
		ReferenceID:        ref,
		CreatedAt:          s.now(),
	}
	if err := repo.LogConversion(ctx, entry); err != nil {
		return nil, err
	}
	if err := repo.LogMovement(ctx, s.movement(packKey, model.MovementConversion, packages.Neg(), packAfter)); err != nil {
		return nil, err
	}
	if err := repo.LogMovement(ctx, s.movement(baseKey, model.MovementConversion, pieces, baseAfter)); err != nil {
		return nil, err
	}

	s.logger.Debug("Packaging broken into base units",
		zap.String("product_id", fam.ProductID),
		zap.String("store_id", storeID),
		zap.String("kind", string(kind)),
		zap.String("packages", packages.String()),
		zap.String("pieces", pieces.String()),
	)

	return []inventory.Balance{
		{Key: packKey, Quantity: packAfter},
		{Key: baseKey, Quantity: baseAfter},
	}, nil
}

// insufficient reports what the caller could have taken in the requested
// unit. Base requests include stock still sealed in packages; packaging
// requests never count loose base units.
func (s *Scoped) insufficient(ctx context.Context, fam unit.Family, key model.LedgerKey, requested decimal.Decimal) error {
	repo := s.tx.Ledger()
	available, err := quantity(ctx, repo, key)
	if err != nil {
		return err
	}
	if fam.IsBase(key.UnitID) && fam.HasPackaging() {
		packed, err := quantity(ctx, repo, packagingKey(fam, key.StoreID))
		if err != nil {
			return err
		}
		available = available.Add(packed.Mul(fam.Factor))
	}
	return &apperror.InsufficientStockError{
		ProductID: key.ProductID,
		StoreID:   key.StoreID,
		UnitID:    key.UnitID,
		Available: available,
		Requested: requested,
	}
}

func (s *Scoped) adjustCounter(ctx context.Context, fam unit.Family, key model.LedgerKey, delta decimal.Decimal) error {
	base, err := fam.ToBase(delta, key.UnitID)
	if err != nil {
		return err
	}
	return s.tx.Ledger().AdjustCounter(ctx, key.ProductID, key.StoreID, base)
}

func (s *Scoped) movement(key model.LedgerKey, typ model.MovementType, change, after decimal.Decimal) *model.InventoryMovement {
	var refID, refType *string
	if s.ref.RefID != "" {
		refID = &s.ref.RefID
	}
	if s.ref.RefType != "" {
		refType = &s.ref.RefType
	}
	var createdBy *string
	if s.ref.UserID != "" {
		createdBy = &s.ref.UserID
	}

	return &model.InventoryMovement{
		ID:             uuid.New().String(),
		StoreID:        key.StoreID,
		ProductID:      key.ProductID,
		UnitID:         key.UnitID,
		MovementType:   typ,
		QuantityChange: change,
		QuantityBefore: after.Sub(change),
		QuantityAfter:  after,
		ReferenceType:  refType,
		ReferenceID:    refID,
		Notes:          s.ref.Notes,
		CreatedBy:      createdBy,
		CreatedAt:      s.now(),
	}
}

func packagingKey(fam unit.Family, storeID string) model.LedgerKey {
	return model.LedgerKey{ProductID: fam.ProductID, StoreID: storeID, UnitID: fam.PackagingUnitID}
}
