package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/storage"
	"github.com/fekuna/omnipos-stock-service/internal/unit"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger owns every change to ledger rows. Each public method runs in its own
// tenant transaction; Within binds the same operations to a caller's one.
type Ledger struct {
	stores storage.Provider
	logger logger.ZapLogger
	now    func() time.Time
}

var _ inventory.UseCase = (*Ledger)(nil)

func NewLedger(stores storage.Provider, log logger.ZapLogger) *Ledger {
	return &Ledger{
		stores: stores,
		logger: log,
		now:    time.Now,
	}
}

// Reference tags the audit rows written by a mutation.
type Reference struct {
	MovementType model.MovementType
	RefType      string
	RefID        string
	Notes        string
	UserID       string
}

var manualAdjustment = Reference{MovementType: model.MovementAdjustment, RefType: "manual"}

func (l *Ledger) inTx(ctx context.Context, tenantID string, fn func(ctx context.Context, tx storage.Tx) error, opts ...storage.TxOption) error {
	store, err := l.stores.Store(ctx, tenantID)
	if err != nil {
		return err
	}
	return store.InTx(ctx, fn, opts...)
}

func (l *Ledger) Available(ctx context.Context, tenantID string, key model.LedgerKey) (decimal.Decimal, error) {
	if err := inventory.ValidateKey(key); err != nil {
		return decimal.Zero, err
	}
	qty := decimal.Zero
	err := l.inTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		var err error
		qty, err = quantity(ctx, tx.Ledger(), key)
		return err
	})
	return qty, err
}

func (l *Ledger) Add(ctx context.Context, tenantID string, key model.LedgerKey, delta decimal.Decimal) (decimal.Decimal, error) {
	var after decimal.Decimal
	err := l.inTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		var err error
		after, err = l.Within(tx, manualAdjustment).Add(ctx, key, delta)
		return err
	})
	return after, err
}

func (l *Ledger) Deduct(ctx context.Context, tenantID string, key model.LedgerKey, delta decimal.Decimal) (decimal.Decimal, error) {
	var after decimal.Decimal
	err := l.inTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		var err error
		after, err = l.Within(tx, manualAdjustment).Deduct(ctx, key, delta)
		return err
	})
	return after, err
}

// Sync moves each product's base-unit row so the ledger's base equivalent
// matches the primary counter. Running it twice changes nothing the second
// time. Counters and ledger rows are read from one snapshot, so a sale that
// commits mid-sync either stays invisible or aborts the sync with
// apperror.ErrConcurrencyConflict when it touched a row being corrected.
func (l *Ledger) Sync(ctx context.Context, tenantID, storeID string) (*inventory.SyncReport, error) {
	if storeID == "" {
		return nil, apperror.Invalid("store_id", "is required")
	}

	var report *inventory.SyncReport
	err := l.inTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		report = &inventory.SyncReport{StoreID: storeID}
		repo := tx.Ledger()

		locked, err := repo.TryLockStore(ctx, storeID)
		if err != nil {
			return fmt.Errorf("lock store %s: %w", storeID, err)
		}
		if !locked {
			return fmt.Errorf("sync store %s: %w", storeID, apperror.ErrConcurrencyConflict)
		}

		counters, err := repo.Counters(ctx, storeID)
		if err != nil {
			return err
		}
		entries, err := repo.ListByStore(ctx, storeID)
		if err != nil {
			return err
		}
		byProduct := make(map[string][]model.LedgerEntry)
		for _, e := range entries {
			byProduct[e.ProductID] = append(byProduct[e.ProductID], e)
		}

		s := l.Within(tx, Reference{MovementType: model.MovementSync, RefType: "sync", RefID: storeID, Notes: "counter reconciliation"})
		counted := make(map[string]bool, len(counters))
		for _, c := range counters {
			counted[c.ProductID] = true
			report.Checked++

			fam, err := s.units.Family(ctx, c.ProductID)
			if errors.Is(err, apperror.ErrProductNotFound) || (err == nil && c.Quantity.IsNegative()) {
				report.Skipped = append(report.Skipped, c.ProductID)
				continue
			}
			if err != nil {
				return err
			}

			current := decimal.Zero
			for _, e := range byProduct[c.ProductID] {
				b, err := fam.ToBase(e.Quantity, e.UnitID)
				if err != nil {
					continue // rows outside the family are not this product's stock
				}
				current = current.Add(b)
			}

			delta := c.Quantity.Sub(current)
			if delta.IsZero() {
				continue
			}
			baseKey := model.LedgerKey{ProductID: c.ProductID, StoreID: storeID, UnitID: fam.BaseUnitID}
			if delta.IsPositive() {
				_, err = s.add(ctx, fam, baseKey, delta, false)
			} else {
				_, err = s.deduct(ctx, fam, baseKey, delta.Neg(), false)
			}
			if err != nil {
				return fmt.Errorf("sync product %s: %w", c.ProductID, err)
			}
			report.Adjusted = append(report.Adjusted, inventory.SyncAdjustment{
				ProductID:    c.ProductID,
				Counter:      c.Quantity,
				LedgerBefore: current,
				Delta:        delta,
			})
		}

		var uncounted []string
		for id := range byProduct {
			if !counted[id] {
				uncounted = append(uncounted, id)
			}
		}
		sort.Strings(uncounted)
		report.Skipped = append(report.Skipped, uncounted...)
		return nil
	}, storage.WithIsolation(storage.RepeatableRead))
	if err != nil {
		return nil, err
	}

	l.logger.Info("Store ledger synced",
		zap.String("tenant_id", tenantID),
		zap.String("store_id", storeID),
		zap.Int("checked", report.Checked),
		zap.Int("adjusted", len(report.Adjusted)),
		zap.Int("skipped", len(report.Skipped)),
	)
	return report, nil
}

// Execute validates cmd and applies it in one transaction.
func (l *Ledger) Execute(ctx context.Context, tenantID string, cmd inventory.Command) ([]inventory.Balance, error) {
	if cmd == nil {
		return nil, apperror.Invalid("command", "is required")
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var out []inventory.Balance
	err := l.inTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		out = nil
		record := func(key model.LedgerKey, qty decimal.Decimal) {
			out = append(out, inventory.Balance{Key: key, Quantity: qty})
		}

		switch c := cmd.(type) {
		case inventory.ReceiveStock:
			s := l.Within(tx, Reference{MovementType: model.MovementPurchase, RefType: "purchase", RefID: c.ReferenceID, UserID: c.UserID})
			q, err := s.Add(ctx, c.Key, c.Quantity)
			if err != nil {
				return err
			}
			record(c.Key, q)

		case inventory.IssueStock:
			s := l.Within(tx, Reference{MovementType: model.MovementAdjustment, RefType: "issue", Notes: c.Reason, UserID: c.UserID})
			q, err := s.Deduct(ctx, c.Key, c.Quantity)
			if err != nil {
				return err
			}
			record(c.Key, q)

		case inventory.AdjustStock:
			s := l.Within(tx, Reference{MovementType: model.MovementAdjustment, RefType: "manual", Notes: c.Reason, UserID: c.UserID})
			var q decimal.Decimal
			var err error
			if c.Delta.IsPositive() {
				q, err = s.Add(ctx, c.Key, c.Delta)
			} else {
				q, err = s.Deduct(ctx, c.Key, c.Delta.Neg())
			}
			if err != nil {
				return err
			}
			record(c.Key, q)

		case inventory.TransferStock:
			transferID := uuid.New().String()
			s := l.Within(tx, Reference{MovementType: model.MovementTransfer, RefType: "transfer", RefID: transferID, Notes: c.Reason, UserID: c.UserID})
			from, err := s.Deduct(ctx, c.Source(), c.Quantity)
			if err != nil {
				return err
			}
			to, err := s.Add(ctx, c.Target(), c.Quantity)
			if err != nil {
				return err
			}
			record(c.Source(), from)
			record(c.Target(), to)

		case inventory.BreakPackaging:
			s := l.Within(tx, Reference{MovementType: model.MovementConversion, RefType: "manual_conversion", UserID: c.UserID})
			balances, err := s.BreakPackaging(ctx, c.ProductID, c.StoreID, c.Packages)
			if err != nil {
				return err
			}
			out = append(out, balances...)

		default:
			return apperror.Invalid("command", fmt.Sprintf("unsupported command %T", cmd))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Convert expresses qty of fromUnit in toUnit. A nil result means the two
// units share no conversion path.
func (l *Ledger) Convert(ctx context.Context, tenantID, productID string, qty decimal.Decimal, fromUnit, toUnit string) (*decimal.Decimal, error) {
	var out *decimal.Decimal
	err := l.inTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = unit.NewGraph(tx.Units()).Convert(ctx, qty, fromUnit, toUnit, productID)
		return err
	})
	return out, err
}

func (l *Ledger) UpdateFactor(ctx context.Context, tenantID, productID string, factor decimal.Decimal) error {
	err := l.inTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		return unit.NewGraph(tx.Units()).UpdateFactor(ctx, productID, factor)
	})
	if err == nil {
		l.logger.Info("conversion factor updated",
			zap.String("tenant_id", tenantID),
			zap.String("product_id", productID),
			zap.String("factor", factor.String()),
		)
	}
	return err
}

func (l *Ledger) ListMovements(ctx context.Context, tenantID string, filters *dto.MovementFilters) ([]model.InventoryMovement, error) {
	var items []model.InventoryMovement
	err := l.inTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		var err error
		items, err = tx.Ledger().ListMovements(ctx, filters)
		return err
	})
	return items, err
}

func (l *Ledger) ListConversions(ctx context.Context, tenantID string, filters *dto.ConversionFilters) ([]model.UnitConversionLog, error) {
	var items []model.UnitConversionLog
	err := l.inTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		var err error
		items, err = tx.Ledger().ListConversions(ctx, filters)
		return err
	})
	return items, err
}

func quantity(ctx context.Context, repo inventory.Repository, key model.LedgerKey) (decimal.Decimal, error) {
	e, err := repo.Get(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	if e == nil {
		return decimal.Zero, nil
	}
	return e.Quantity, nil
}

// family loads the product's units and rejects a key in a foreign unit.
func family(ctx context.Context, g *unit.Graph, key model.LedgerKey) (unit.Family, error) {
	fam, err := g.Family(ctx, key.ProductID)
	if err != nil {
		return unit.Family{}, err
	}
	if !fam.Contains(key.UnitID) {
		return unit.Family{}, fmt.Errorf("unit %s on product %s: %w", key.UnitID, key.ProductID, apperror.ErrUnitMismatch)
	}
	return fam, nil
}
